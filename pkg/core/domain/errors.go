package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrURLRequired        = errors.New("original url is required")
	ErrInvalidURL         = errors.New("original url is not a valid http(s) url")
	ErrInvalidAliasFormat = errors.New("alias may only contain letters, numbers, dashes and underscores")

	ErrAliasRequiresOwner = errors.New("custom alias requires an owner")
	ErrAliasTaken         = errors.New("alias already taken")
	ErrNotFound           = errors.New("link not found")

	// ErrTemporaryFailure hides store failures from callers; they may retry.
	ErrTemporaryFailure = errors.New("temporary failure")
)

// ValidationError is a user-correctable input problem. No store write has
// happened when one is returned.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
