package relationship

import "time"

// AdvancePay は雇用主が傷病手当を立て替える (forskuttering) かどうかを表す三値です。
type AdvancePay string

const (
	AdvancePayYes     AdvancePay = "yes"
	AdvancePayNo      AdvancePay = "no"
	AdvancePayUnknown AdvancePay = "unknown"
)

// AdvancePayFromBool は永続化されたnullableな真偽値を AdvancePay に変換します。
func AdvancePayFromBool(v *bool) AdvancePay {
	if v == nil {
		return AdvancePayUnknown
	}
	if *v {
		return AdvancePayYes
	}
	return AdvancePayNo
}

// Bool は AdvancePay を永続化用のnullableな真偽値へ変換します。
func (a AdvancePay) Bool() *bool {
	var v bool
	switch a {
	case AdvancePayYes:
		v = true
	case AdvancePayNo:
		v = false
	default:
		return nil
	}
	return &v
}

// Relationship は従業員と雇用主ごとの最寄りの上長 (nærmeste leder) との関係を、有効期間ごとに1行で表します。
// ValidTo が nil の行が現在有効な関係です。
type Relationship struct {
	ID            string
	EmployerOrgID string
	EmployeeID    string
	LeaderID      string
	AdvancesPay   AdvancePay
	ValidFrom     time.Time
	ValidTo       *time.Time
	// DisplayName は読み取り時に付与される上長の表示名で、永続化されません。
	DisplayName *string
}

// Active は関係が現在有効かどうかを返します。
func (r *Relationship) Active() bool {
	return r != nil && r.ValidTo == nil
}
