package relationship

import (
	"context"
	"time"
)

// Repository は最寄りの上長関係の永続化の抽象です。
// 行は削除されず、ValidTo の設定 (Close) のみが唯一の更新です。
type Repository interface {
	// FindActive は組織と従業員の組で有効な関係を返します。存在しない場合は ErrRelationshipNotFound を返します。
	FindActive(ctx context.Context, orgID, employeeID string) (*Relationship, error)
	// FindActiveForLeader は上長が持つ有効な関係をすべて返します。
	FindActiveForLeader(ctx context.Context, leaderID string) ([]*Relationship, error)
	// FindAllForEmployee は従業員の関係を雇用主を問わず挿入順に返します。
	FindAllForEmployee(ctx context.Context, employeeID string) ([]*Relationship, error)
	// FindHistory は組織と従業員の組の関係を valid_from 昇順で返します。
	FindHistory(ctx context.Context, orgID, employeeID string) ([]*Relationship, error)
	// Create は新しい関係を追記します。
	Create(ctx context.Context, rel *Relationship) (*Relationship, error)
	// Close は有効な行に限り valid_to を設定します。該当行がなければ false, nil を返します。
	Close(ctx context.Context, rel *Relationship, closedAt time.Time) (bool, error)
}
