package relationship

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/nearest-leader/internal/core/person"
	"go.uber.org/zap"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// UseCase は最寄りの上長関係の読み取りと登録のユースケースです。
type UseCase interface {
	List(ctx context.Context, employeeID string) ([]*Relationship, error)
	ListWithNames(ctx context.Context, employeeID, correlationID string) ([]*Relationship, error)
	ListActiveForLeader(ctx context.Context, leaderID string) ([]*Relationship, error)
	GetAdvancePay(ctx context.Context, orgID, employeeID string) (AdvancePay, error)
	Register(ctx context.Context, in RegisterInput) (*Relationship, error)
	Close(ctx context.Context, in CloseInput) (bool, error)
}

// Service は UseCase の実装です。
type Service struct {
	repo   Repository
	names  person.NameResolver
	clock  Clock
	tx     TransactionManager
	logger *zap.Logger
}

// NewService は Service を生成します。
func NewService(repo Repository, names person.NameResolver, clock Clock, tx TransactionManager, logger *zap.Logger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, names: names, clock: clock, tx: tx, logger: logger}
}

// RegisterInput は受諾された新しい関係の入力です。
type RegisterInput struct {
	EmployerOrgID string
	EmployeeID    string
	LeaderID      string
	AdvancesPay   AdvancePay
	ValidFrom     time.Time
}

// CloseInput は組織と従業員の組の有効な関係を終了する入力です。
type CloseInput struct {
	EmployerOrgID string
	EmployeeID    string
	ClosedAt      time.Time
}

// List は従業員の関係を表示名なしで返します。
func (s *Service) List(ctx context.Context, employeeID string) ([]*Relationship, error) {
	employeeID, err := normalizeID(employeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}

	var result []*Relationship
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindAllForEmployee(txCtx, employeeID)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// ListWithNames は従業員の関係に上長の表示名を付与して返します。
// 名前を解決できなかった関係は DisplayName が nil のまま返ります。
func (s *Service) ListWithNames(ctx context.Context, employeeID, correlationID string) ([]*Relationship, error) {
	relationships, err := s.List(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if len(relationships) == 0 {
		return []*Relationship{}, nil
	}

	leaderIDs := make([]string, 0, len(relationships))
	for _, rel := range relationships {
		leaderIDs = append(leaderIDs, rel.LeaderID)
	}

	names, err := s.names.ResolveNames(ctx, person.DistinctIDs(leaderIDs), correlationID)
	if err != nil {
		return nil, fmt.Errorf("resolve leader names: %w", err)
	}

	enriched := make([]*Relationship, 0, len(relationships))
	for _, rel := range relationships {
		clone := *rel
		clone.DisplayName = nil
		if name, ok := names[rel.LeaderID]; ok && name != "" {
			n := name
			clone.DisplayName = &n
		} else {
			s.logger.Warn("leader name not resolved", zap.String("correlation_id", correlationID), zap.String("relationship_id", rel.ID))
		}
		enriched = append(enriched, &clone)
	}
	return enriched, nil
}

// ListActiveForLeader は上長の有効な関係を返します。
func (s *Service) ListActiveForLeader(ctx context.Context, leaderID string) ([]*Relationship, error) {
	leaderID, err := normalizeID(leaderID, ErrInvalidLeaderID)
	if err != nil {
		return nil, err
	}

	var result []*Relationship
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindActiveForLeader(txCtx, leaderID)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAdvancePay は組織と従業員の組の履歴から立替状況を返します。
func (s *Service) GetAdvancePay(ctx context.Context, orgID, employeeID string) (AdvancePay, error) {
	orgID, err := normalizeID(orgID, ErrInvalidOrgID)
	if err != nil {
		return AdvancePayUnknown, err
	}
	employeeID, err = normalizeID(employeeID, ErrInvalidEmployeeID)
	if err != nil {
		return AdvancePayUnknown, err
	}

	var history []*Relationship
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindHistory(txCtx, orgID, employeeID)
		if err != nil {
			return err
		}
		history = found
		return nil
	}); err != nil {
		return AdvancePayUnknown, err
	}

	return ResolveAdvancePay(history), nil
}

// Register は新しい関係を登録します。既存の有効な関係は新しい関係の開始時刻で終了します。
// 同じ上長と立替状況の有効な関係が既にあれば、それをそのまま返します。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Relationship, error) {
	orgID, err := normalizeID(in.EmployerOrgID, ErrInvalidOrgID)
	if err != nil {
		return nil, err
	}
	employeeID, err := normalizeID(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}
	leaderID, err := normalizeID(in.LeaderID, ErrInvalidLeaderID)
	if err != nil {
		return nil, err
	}

	validFrom := in.ValidFrom
	if validFrom.IsZero() {
		validFrom = s.clock.Now()
	}
	validFrom = validFrom.UTC()

	var created *Relationship
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		history, err := s.repo.FindHistory(txCtx, orgID, employeeID)
		if err != nil {
			return err
		}
		existing, lastClosed := splitHistory(history)

		if existing != nil && existing.LeaderID == leaderID && existing.AdvancesPay == normalize(in.AdvancesPay) {
			created = existing
			return nil
		}
		if lastClosed != nil && validFrom.Before(*lastClosed) {
			return ErrInvalidPeriod
		}

		if existing != nil {
			if validFrom.Before(existing.ValidFrom) {
				return ErrInvalidPeriod
			}
			if _, err := s.repo.Close(txCtx, existing, validFrom); err != nil {
				return err
			}
		}

		result, err := s.repo.Create(txCtx, &Relationship{
			EmployerOrgID: orgID,
			EmployeeID:    employeeID,
			LeaderID:      leaderID,
			AdvancesPay:   normalize(in.AdvancesPay),
			ValidFrom:     validFrom,
		})
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// Close は組織と従業員の組の有効な関係を終了します。有効な関係がなければ false を返します。
func (s *Service) Close(ctx context.Context, in CloseInput) (bool, error) {
	orgID, err := normalizeID(in.EmployerOrgID, ErrInvalidOrgID)
	if err != nil {
		return false, err
	}
	employeeID, err := normalizeID(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return false, err
	}

	closedAt := in.ClosedAt
	if closedAt.IsZero() {
		closedAt = s.clock.Now()
	}

	var closed bool
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		ok, err := s.repo.Close(txCtx, &Relationship{EmployerOrgID: orgID, EmployeeID: employeeID}, closedAt.UTC())
		if err != nil {
			return err
		}
		closed = ok
		return nil
	}); err != nil {
		return false, err
	}
	return closed, nil
}

// splitHistory は履歴から有効な行と、終了済みの行のうち最も新しい valid_to を取り出します。
func splitHistory(history []*Relationship) (*Relationship, *time.Time) {
	var (
		active     *Relationship
		lastClosed *time.Time
	)
	for _, rel := range history {
		if rel == nil {
			continue
		}
		if rel.ValidTo == nil {
			if active == nil || rel.ValidFrom.After(active.ValidFrom) {
				active = rel
			}
			continue
		}
		if lastClosed == nil || rel.ValidTo.After(*lastClosed) {
			lastClosed = rel.ValidTo
		}
	}
	return active, lastClosed
}

func normalizeID(raw string, invalid error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid
	}
	return trimmed, nil
}
