package spec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpec matches every *ValidationError
	ErrInvalidSpec = errors.New("invalid spec")

	// ErrParse is returned when a spec document cannot be decoded
	ErrParse = errors.New("parse spec")

	// ErrUnknownOption is returned for option names outside the registry
	ErrUnknownOption = errors.New("unknown option")

	// ErrOptionMismatch is returned when an option name holds a record of another variant
	ErrOptionMismatch = errors.New("option bound to wrong variant")
)

// ValidationError describes the first invariant violation found in a Spec
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spec validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSpec
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
