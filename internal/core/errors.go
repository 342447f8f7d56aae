// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// The four error kinds every exported operation resolves to. Callers branch
// with errors.Is (or the Is* helpers) rather than string matching.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation error")

	// ErrState marks an operation that is legal in some state but not the
	// current one, e.g. moving in a completed game.
	ErrState = errors.New("invalid state")

	// ErrConflict marks a lost race: the resource changed underneath the
	// caller, or a uniqueness rule was violated.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a lookup of something that does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Statef builds an error wrapping ErrState.
func Statef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Conflictf builds an error wrapping ErrConflict.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error wrapping ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsState(err error) bool      { return errors.Is(err, ErrState) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
