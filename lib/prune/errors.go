package prune

import (
	"errors"
	"fmt"
)

// ErrNotFlat is returned when a flat prune meets a subdirectory it would have to remove
var ErrNotFlat = errors.New("directory is not flat")

// Error reports the prune operation and path that failed
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, Path: path, Err: err}
}
