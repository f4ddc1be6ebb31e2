package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
)

// ConflictError reports a reservation rejected because some of the requested
// seats are already held by an active booking. Seats lists exactly the
// colliding seat numbers, not the whole request.
type ConflictError struct {
	Seats []int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seats already booked: %v", e.Seats)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
