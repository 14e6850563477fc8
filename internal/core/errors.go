package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth indicates a credential or permission failure against the
	// mail source. Fatal for the mailbox until reconfigured.
	ErrAuth = errors.New("authentication failed")

	// ErrTransient indicates a temporary network failure. The cursor is
	// left untouched and the next tick retries.
	ErrTransient = errors.New("transient network error")

	// ErrRateLimited indicates the mail source throttled us. Retryable
	// on the next tick.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates bad caller input. No state change, no
	// audit entry.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown email or rule id.
	ErrNotFound = errors.New("not found")
)

// AuthErrorf wraps ErrAuth with a formatted message.
func AuthErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrAuth)...)
}

// TransientErrorf wraps ErrTransient with a formatted message.
func TransientErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrTransient)...)
}

// RateLimitedErrorf wraps ErrRateLimited with a formatted message.
func RateLimitedErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrRateLimited)...)
}

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// NotFoundErrorf wraps ErrNotFound with a formatted message.
func NotFoundErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// IsRetryable reports whether the poll error should be retried on the
// next scheduled tick.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited)
}
