package deactivation

import "errors"

var (
	ErrInvalidOrgID         = errors.New("deactivation: invalid employer org id")
	ErrInvalidEmployeeID    = errors.New("deactivation: invalid employee id")
	ErrInvalidLeaderID      = errors.New("deactivation: invalid leader id")
	ErrIdentityInconsistent = errors.New("deactivation: employee name not found in person registry")
)
