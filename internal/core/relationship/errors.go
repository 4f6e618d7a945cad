package relationship

import "errors"

var (
	ErrInvalidOrgID         = errors.New("relationship: invalid employer org id")
	ErrInvalidEmployeeID    = errors.New("relationship: invalid employee id")
	ErrInvalidLeaderID      = errors.New("relationship: invalid leader id")
	ErrInvalidPeriod        = errors.New("relationship: valid_from precedes the active relationship")
	ErrRelationshipNotFound = errors.New("relationship: not found")
	ErrActiveAlreadyExists  = errors.New("relationship: active relationship already exists")
)
