package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by both adapters. Callers match with errors.Is;
// adapters wrap them with operation context via %w.
var (
	// ErrUnavailable means the backend cannot be reached (network down,
	// embedded store missing or locked away).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrUnauthorized means credentials are missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the addressed entity does not exist at the
	// backend. Benign for delete, a hard failure for update and toggle.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration means the requested mode or settings cannot be
	// satisfied by the current runtime.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation means the input was rejected before dispatch.
	ErrValidation = errors.New("validation error")
)

// wrapf attaches a formatted message to a sentinel.
func wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// WrapUnavailable marks err as a reachability failure.
func WrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// WrapConfiguration attaches a formatted message to ErrConfiguration.
func WrapConfiguration(format string, args ...interface{}) error {
	return wrapf(ErrConfiguration, format, args...)
}
