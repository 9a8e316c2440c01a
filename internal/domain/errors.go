package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrPositionClosed   = errors.New("position already closed")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrAuthRequired     = errors.New("exchange credentials missing or invalid")
	ErrInvalidExitRule  = errors.New("invalid exit rule")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")

	// ErrInconsistentState marks a closure whose exit order executed but
	// whose persisted state could not be updated. It must be escalated,
	// never auto-retried: retrying the order would double-execute.
	ErrInconsistentState = errors.New("exit executed but close not persisted")
)
