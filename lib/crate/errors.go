package crate

import "errors"

// PhaseCreate prefixes every error returned by Builder.Create
const PhaseCreate = "creating a crate"

var (
	// ErrNoCrateName is returned when no output is given and the spec names neither an
	// executable nor a service to derive it from
	ErrNoCrateName = errors.New("cannot guess the crate name: the spec has neither a run command nor services")
)

// Error is a failure of one crate build phase
type Error struct {
	Phase string
	Err   error
}

func (e *Error) Error() string {
	return e.Phase + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
