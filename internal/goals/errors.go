package goals

import (
	"errors"
	"strings"

	"github.com/hyperengineering/nestegg/internal/validation"
)

var (
	ErrNotFound            = errors.New("goal not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrValidation          = errors.New("validation failed")
)

// ValidationFailure carries the field errors behind an ErrValidation.
type ValidationFailure struct {
	Errors []validation.ValidationError
}

func (e *ValidationFailure) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationFailure) Unwrap() error {
	return ErrValidation
}

// FieldErrors extracts field-level validation errors from err, if any.
func FieldErrors(err error) []validation.ValidationError {
	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return vf.Errors
	}
	return nil
}

func invalid(errs []validation.ValidationError) error {
	return &ValidationFailure{Errors: errs}
}
