package service

import (
	"errors"
	"fmt"

	"github.com/garyjia/ringiflow/internal/application/port"
	"github.com/garyjia/ringiflow/internal/domain/workflow"
)

// Error taxonomy exposed to callers. HTTP handlers map these to status
// codes with errors.Is; messages carry the detail.
var (
	// ErrNotFound means the instance, step or definition does not exist
	// for the given tenant.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest means a state-transition precondition was violated:
	// wrong source state, approver list mismatch, unpublished definition.
	ErrBadRequest = errors.New("bad request")

	// ErrForbidden means the actor is not the assigned approver or not
	// the original initiator.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means the optimistic-lock version did not match.
	ErrConflict = errors.New("conflict")

	// ErrInternal means a storage or invariant failure.
	ErrInternal = errors.New("internal error")
)

func notFoundErr(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

func badRequestErr(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrBadRequest)...)
}

func forbiddenErr(action string) error {
	return fmt.Errorf("not allowed to %s: %w", action, ErrForbidden)
}

func conflictErr(entity string, expected, actual int) error {
	return fmt.Errorf("%s version %w: expected %d, found %d", entity, ErrConflict, expected, actual)
}

func internalErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrInternal)
}

// domainErr converts a domain transition failure into a BadRequest, keeping
// other errors (already classified) untouched.
func domainErr(err error) error {
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return fmt.Errorf("%v: %w", err, ErrBadRequest)
	}
	return err
}

func isVersionConflict(err error) bool {
	return errors.Is(err, port.ErrVersionConflict)
}

func errNoPendingStep(defStepID string) error {
	return fmt.Errorf("no pending step for definition step %q", defStepID)
}

func errStepNotInDefinition(defStepID string) error {
	return fmt.Errorf("definition order does not contain step %q", defStepID)
}
