// Package errs defines the error taxonomy shared by the matching engine,
// the engagement state machine and the reporting layer.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing listing or buyer profile.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied marks an actor acting outside its rights, e.g. a
	// buyer responding to a listing that does not target it.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidTransition marks a lifecycle transition attempted out of
	// order. Most transitions are idempotent no-ops instead.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConsistencyViolation marks a detected divergence between the
	// invitation map and the interested set. It is surfaced, never
	// silently repaired.
	ErrConsistencyViolation = errors.New("consistency violation")
	// ErrVersionConflict marks a compare-and-swap update that lost the
	// race too many times.
	ErrVersionConflict = errors.New("version conflict")
)

// NotFound returns an ErrNotFound for the given entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// PermissionDenied returns an ErrPermissionDenied with a reason.
func PermissionDenied(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrPermissionDenied)
}

// InvalidTransition returns an ErrInvalidTransition describing the attempt.
func InvalidTransition(from, to string) error {
	return fmt.Errorf("cannot transition listing from %s to %s: %w", from, to, ErrInvalidTransition)
}

// ConsistencyViolation describes a divergence found during a read.
type ConsistencyViolation struct {
	ListingID string
	BuyerID   string
	Detail    string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("listing %s buyer %s: %s: %v", e.ListingID, e.BuyerID, e.Detail, ErrConsistencyViolation)
}

func (e *ConsistencyViolation) Unwrap() error { return ErrConsistencyViolation }
