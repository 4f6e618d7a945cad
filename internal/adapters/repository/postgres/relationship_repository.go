package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
	pgdb "github.com/ogurasousui/nearest-leader/internal/platform/db/postgres"
)

const (
	relationshipUniqueViolationCode = "23505"
	relationshipCheckViolationCode  = "23514"
)

const relationshipColumns = `id::text, employer_org_id, employee_id, leader_id, advances_pay, valid_from, valid_to`

const (
	findActiveRelationshipQuery = `
        SELECT ` + relationshipColumns + `
          FROM nearest_leader
         WHERE employer_org_id = $1 AND employee_id = $2 AND valid_to IS NULL
         LIMIT 1
    `

	findActiveForLeaderQuery = `
        SELECT ` + relationshipColumns + `
          FROM nearest_leader
         WHERE leader_id = $1 AND valid_to IS NULL
         ORDER BY valid_from ASC, seq ASC
    `

	findAllForEmployeeQuery = `
        SELECT ` + relationshipColumns + `
          FROM nearest_leader
         WHERE employee_id = $1
         ORDER BY seq ASC
    `

	findHistoryQuery = `
        SELECT ` + relationshipColumns + `
          FROM nearest_leader
         WHERE employer_org_id = $1 AND employee_id = $2
         ORDER BY valid_from ASC, seq ASC
    `

	createRelationshipQuery = `
        INSERT INTO nearest_leader (employer_org_id, employee_id, leader_id, advances_pay, valid_from)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING ` + relationshipColumns

	closeActiveQuery = `
        UPDATE nearest_leader
           SET valid_to = $1
         WHERE employer_org_id = $2 AND employee_id = $3 AND valid_to IS NULL`

	closeActiveByIDQuery = closeActiveQuery + ` AND id = $4::uuid`
)

// RelationshipRepository は PostgreSQL を利用した最寄りの上長関係の永続化の実装です。
type RelationshipRepository struct {
	pool pgdb.Queryer
}

// NewRelationshipRepository は RelationshipRepository を生成します。
func NewRelationshipRepository(pool pgdb.Queryer) *RelationshipRepository {
	return &RelationshipRepository{pool: pool}
}

// FindActive は組織と従業員の組で有効な関係を取得します。
func (r *RelationshipRepository) FindActive(ctx context.Context, orgID, employeeID string) (*relationship.Relationship, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, findActiveRelationshipQuery, orgID, employeeID)

	found, err := scanRelationship(row)
	if err != nil {
		return nil, translateRelationshipPgError(err)
	}
	return found, nil
}

// FindActiveForLeader は上長の有効な関係を取得します。
func (r *RelationshipRepository) FindActiveForLeader(ctx context.Context, leaderID string) ([]*relationship.Relationship, error) {
	return r.list(ctx, findActiveForLeaderQuery, leaderID)
}

// FindAllForEmployee は従業員の関係を挿入順に取得します。
func (r *RelationshipRepository) FindAllForEmployee(ctx context.Context, employeeID string) ([]*relationship.Relationship, error) {
	return r.list(ctx, findAllForEmployeeQuery, employeeID)
}

// FindHistory は組織と従業員の組の関係を valid_from 昇順で取得します。
func (r *RelationshipRepository) FindHistory(ctx context.Context, orgID, employeeID string) ([]*relationship.Relationship, error) {
	return r.list(ctx, findHistoryQuery, orgID, employeeID)
}

// Create は関係を追記します。
func (r *RelationshipRepository) Create(ctx context.Context, rel *relationship.Relationship) (*relationship.Relationship, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, createRelationshipQuery,
		rel.EmployerOrgID,
		rel.EmployeeID,
		rel.LeaderID,
		rel.AdvancesPay.Bool(),
		rel.ValidFrom.UTC(),
	)

	created, err := scanRelationship(row)
	if err != nil {
		return nil, translateRelationshipPgError(err)
	}
	return created, nil
}

// Close は有効な行に限り valid_to を設定する条件付き更新です。
// rel.ID が指定されていればその行のみを対象とし、該当行がなければ false を返します。
func (r *RelationshipRepository) Close(ctx context.Context, rel *relationship.Relationship, closedAt time.Time) (bool, error) {
	query := closeActiveQuery
	args := []any{closedAt.UTC(), rel.EmployerOrgID, rel.EmployeeID}
	if rel.ID != "" {
		query = closeActiveByIDQuery
		args = append(args, rel.ID)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, query, args...)
	if err != nil {
		return false, translateRelationshipPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RelationshipRepository) list(ctx context.Context, query string, args ...any) ([]*relationship.Relationship, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translateRelationshipPgError(err)
	}
	defer rows.Close()

	result := make([]*relationship.Relationship, 0)
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, translateRelationshipPgError(err)
		}
		result = append(result, rel)
	}

	if err := rows.Err(); err != nil {
		return nil, translateRelationshipPgError(err)
	}

	return result, nil
}

func scanRelationship(row pgx.Row) (*relationship.Relationship, error) {
	var (
		id          string
		orgID       string
		employeeID  string
		leaderID    string
		advancesPay sql.NullBool
		validFrom   time.Time
		validTo     sql.NullTime
	)

	if err := row.Scan(
		&id,
		&orgID,
		&employeeID,
		&leaderID,
		&advancesPay,
		&validFrom,
		&validTo,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, relationship.ErrRelationshipNotFound
		}
		return nil, err
	}

	var advances *bool
	if advancesPay.Valid {
		v := advancesPay.Bool
		advances = &v
	}

	var validToPtr *time.Time
	if validTo.Valid {
		t := validTo.Time.UTC()
		validToPtr = &t
	}

	return &relationship.Relationship{
		ID:            id,
		EmployerOrgID: orgID,
		EmployeeID:    employeeID,
		LeaderID:      leaderID,
		AdvancesPay:   relationship.AdvancePayFromBool(advances),
		ValidFrom:     validFrom.UTC(),
		ValidTo:       validToPtr,
	}, nil
}

func translateRelationshipPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return relationship.ErrRelationshipNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case relationshipUniqueViolationCode:
			return relationship.ErrActiveAlreadyExists
		case relationshipCheckViolationCode:
			return relationship.ErrInvalidPeriod
		}
	}

	return err
}
