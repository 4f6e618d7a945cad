package deactivation

import "context"

// Employment は従業員と雇用主の雇用関係の状態です。
type Employment struct {
	OrgID  string
	Active bool
}

// EmploymentGate は雇用関係がまだ有効かを問い合わせる外部コラボレータです。
// employeeInitiated が true の場合、従業員本人が同意した雇用主のみが見えます。
type EmploymentGate interface {
	GetEmployments(ctx context.Context, employeeID, authToken string, employeeInitiated bool) ([]Employment, error)
}

// NotificationChannel は NewLeaderRequest と TerminationNotice を少なくとも1回配信します。
// 戻り値が nil の場合、メッセージは配信のために受理されています。
type NotificationChannel interface {
	Publish(ctx context.Context, msg Notification) error
}
