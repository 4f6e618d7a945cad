package deactivation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogurasousui/nearest-leader/internal/core/person"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ogurasousui/nearest-leader/internal/core/deactivation"

// State は非活性化ワークフローの状態です。
type State string

const (
	StateReceived              State = "RECEIVED"
	StateCheckingEmployment    State = "CHECKING_EMPLOYMENT"
	StateRequestingReplacement State = "REQUESTING_REPLACEMENT"
	StateSkipping              State = "SKIPPING"
	StateNotifying             State = "NOTIFYING"
	StateDone                  State = "DONE"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Store は非活性化に必要な関係ストアの操作です。
type Store interface {
	FindActive(ctx context.Context, orgID, employeeID string) (*relationship.Relationship, error)
	FindActiveForLeader(ctx context.Context, leaderID string) ([]*relationship.Relationship, error)
	Close(ctx context.Context, rel *relationship.Relationship, closedAt time.Time) (bool, error)
}

// UseCase は非活性化ユースケースの公開インターフェースです。
type UseCase interface {
	DeactivateForEmployee(ctx context.Context, in DeactivateForEmployeeInput) (*Result, error)
	Deactivate(ctx context.Context, in DeactivateInput) (*Result, error)
}

// DeactivateForEmployeeInput は上長が起点となる非活性化の入力です。
type DeactivateForEmployeeInput struct {
	LeaderID      string
	EmployerOrgID string
	EmployeeID    string
	AuthToken     string
	CorrelationID uuid.UUID
}

// DeactivateInput は非活性化の入力です。
type DeactivateInput struct {
	EmployerOrgID       string
	EmployeeID          string
	AuthToken           string
	CorrelationID       uuid.UUID
	TriggeredByEmployee bool
}

// Result は1回のトリガーの処理結果です。
type Result struct {
	FinalState           State
	Transitions          []State
	Source               Source
	NoOp                 bool
	ReplacementRequested bool
	Closed               bool
}

func (r *Result) enter(state State) {
	r.Transitions = append(r.Transitions, state)
	r.FinalState = state
}

// Service は最寄りの上長関係の非活性化を実行します。
type Service struct {
	store      Store
	employment EmploymentGate
	names      person.NameResolver
	channel    NotificationChannel
	clock      Clock
	logger     *zap.Logger
}

// NewService は Service を生成します。
func NewService(store Store, employment EmploymentGate, names person.NameResolver, channel NotificationChannel, clock Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		employment: employment,
		names:      names,
		channel:    channel,
		clock:      clock,
		logger:     logger,
	}
}

// DeactivateForEmployee は上長の有効な関係のうち、指定された組織と従業員に一致するものを非活性化します。
// 一致する関係がなければ何もせずに成功します。
func (s *Service) DeactivateForEmployee(ctx context.Context, in DeactivateForEmployeeInput) (*Result, error) {
	leaderID := strings.TrimSpace(in.LeaderID)
	if leaderID == "" {
		return nil, ErrInvalidLeaderID
	}
	orgID, employeeID, err := normalizePair(in.EmployerOrgID, in.EmployeeID)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "deactivation.DeactivateForEmployee",
		trace.WithAttributes(attribute.String("org_id", orgID), attribute.String("source", string(SourceManager))))
	defer span.End()

	log := s.logger.With(zap.String("correlation_id", in.CorrelationID.String()), zap.String("org_id", orgID))
	result := &Result{Source: SourceManager}
	result.enter(StateReceived)

	active, err := s.store.FindActiveForLeader(ctx, leaderID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var match *relationship.Relationship
	for _, rel := range active {
		if rel.EmployerOrgID == orgID && rel.EmployeeID == employeeID {
			match = rel
			break
		}
	}

	if match == nil {
		log.Info("no active relationships to deactivate")
		result.NoOp = true
		result.enter(StateDone)
		return result, nil
	}

	log.Info("deactivating relationship", zap.String("relationship_id", match.ID))
	if err := s.run(ctx, match, in.AuthToken, in.CorrelationID, false, result, log); err != nil {
		recordError(span, err)
		return nil, err
	}
	return result, nil
}

// Deactivate は組織と従業員の組の有効な関係を非活性化します。
// 雇用関係が有効であれば新しい上長の登録を依頼し、終了通知は常に送信します。
func (s *Service) Deactivate(ctx context.Context, in DeactivateInput) (*Result, error) {
	orgID, employeeID, err := normalizePair(in.EmployerOrgID, in.EmployeeID)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "deactivation.Deactivate",
		trace.WithAttributes(attribute.String("org_id", orgID), attribute.String("source", string(sourceOf(in.TriggeredByEmployee)))))
	defer span.End()

	log := s.logger.With(zap.String("correlation_id", in.CorrelationID.String()), zap.String("org_id", orgID))
	result := &Result{Source: sourceOf(in.TriggeredByEmployee)}
	result.enter(StateReceived)

	active, err := s.store.FindActive(ctx, orgID, employeeID)
	if err != nil {
		if errors.Is(err, relationship.ErrRelationshipNotFound) {
			log.Info("no active relationship to deactivate")
			result.NoOp = true
			result.enter(StateDone)
			return result, nil
		}
		recordError(span, err)
		return nil, err
	}

	if err := s.run(ctx, active, in.AuthToken, in.CorrelationID, in.TriggeredByEmployee, result, log); err != nil {
		recordError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, rel *relationship.Relationship, authToken string, correlationID uuid.UUID, triggeredByEmployee bool, result *Result, log *zap.Logger) error {
	source := sourceOf(triggeredByEmployee)
	result.Source = source

	result.enter(StateCheckingEmployment)
	employments, err := s.employment.GetEmployments(ctx, rel.EmployeeID, authToken, triggeredByEmployee)
	if err != nil {
		return fmt.Errorf("get employments: %w", err)
	}

	if hasActiveEmployment(employments, rel.EmployerOrgID) {
		result.enter(StateRequestingReplacement)
		log.Info("employment is active, requesting new leader")

		names, err := s.names.ResolveNames(ctx, []string{rel.EmployeeID}, correlationID.String())
		if err != nil {
			return fmt.Errorf("resolve employee name: %w", err)
		}
		name := strings.TrimSpace(names[rel.EmployeeID])
		if name == "" {
			return fmt.Errorf("%w (correlation id %s)", ErrIdentityInconsistent, correlationID)
		}

		if err := s.channel.Publish(ctx, &NewLeaderRequest{
			RequestID:     correlationID,
			EmployeeID:    rel.EmployeeID,
			EmployerOrgID: rel.EmployerOrgID,
			DisplayName:   name,
			Timestamp:     s.clock.Now(),
			Source:        source,
		}); err != nil {
			return fmt.Errorf("publish new leader request: %w", err)
		}
		result.ReplacementRequested = true
	} else {
		result.enter(StateSkipping)
	}

	result.enter(StateNotifying)
	now := s.clock.Now()
	if err := s.channel.Publish(ctx, &TerminationNotice{
		EmployerOrgID: rel.EmployerOrgID,
		EmployeeID:    rel.EmployeeID,
		ActiveUntil:   now,
		Timestamp:     now,
		Source:        source,
	}); err != nil {
		return fmt.Errorf("publish termination notice: %w", err)
	}

	closed, err := s.store.Close(ctx, rel, now)
	if err != nil {
		return fmt.Errorf("close relationship: %w", err)
	}
	if !closed {
		log.Info("relationship was already closed by a concurrent trigger", zap.String("relationship_id", rel.ID))
	}
	result.Closed = closed

	result.enter(StateDone)
	return nil
}

func hasActiveEmployment(employments []Employment, orgID string) bool {
	for _, e := range employments {
		if e.OrgID == orgID && e.Active {
			return true
		}
	}
	return false
}

func normalizePair(orgID, employeeID string) (string, string, error) {
	org := strings.TrimSpace(orgID)
	if org == "" {
		return "", "", ErrInvalidOrgID
	}
	emp := strings.TrimSpace(employeeID)
	if emp == "" {
		return "", "", ErrInvalidEmployeeID
	}
	return org, emp, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
