package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrRiderNotFound     = errors.New("rider not found")
	ErrAlreadyAssigned   = errors.New("order already assigned to another rider")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAssignedRider  = errors.New("caller is not the assigned rider")
	ErrRiderInactive     = errors.New("rider is not accepting orders")
	ErrQuotaReached      = errors.New("rider daily quota reached")
	ErrRoleNotAllowed    = errors.New("role not allowed for this operation")
	ErrInvalidOrder      = errors.New("invalid order")
)

// IsConflict reports errors that mean "the order moved under you, re-fetch".
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned) || errors.Is(err, ErrInvalidTransition)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrRiderNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotAssignedRider) || errors.Is(err, ErrRoleNotAllowed) ||
		errors.Is(err, ErrRiderInactive) || errors.Is(err, ErrQuotaReached)
}
