package deactivation

import (
	"time"

	"github.com/google/uuid"
)

// Source は非活性化を起動した主体です。監査用で制御には使用しません。
type Source string

const (
	SourceEmployee Source = "EMPLOYEE"
	SourceManager  Source = "MANAGER"
)

func sourceOf(triggeredByEmployee bool) Source {
	if triggeredByEmployee {
		return SourceEmployee
	}
	return SourceManager
}

// Notification は NotificationChannel に送るメッセージです。
type Notification interface {
	notification()
}

// NewLeaderRequest は新しい最寄りの上長の登録を雇用主に依頼するメッセージです。
type NewLeaderRequest struct {
	RequestID     uuid.UUID
	EmployeeID    string
	EmployerOrgID string
	DisplayName   string
	Timestamp     time.Time
	Source        Source
}

// TerminationNotice は関係が終了したことを通知するメッセージです。
type TerminationNotice struct {
	EmployerOrgID string
	EmployeeID    string
	ActiveUntil   time.Time
	Timestamp     time.Time
	Source        Source
}

func (*NewLeaderRequest) notification()  {}
func (*TerminationNotice) notification() {}
