package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	// from the entity's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a persisted record cannot be
	// reconstructed into a consistent state.
	ErrInvalidState = errors.New("invalid state")
)
