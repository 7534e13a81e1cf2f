package command

import (
	"errors"
	"fmt"
)

// ErrEmptyCommand is returned when no program name is given
var ErrEmptyCommand = errors.New("empty command")

// CommandError reports an external process that exited with a non-zero status
type CommandError struct {
	What     string // human description of what was attempted
	ExitCode int
	Output   []byte // combined output when captured
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("run external command: the command '%s' failed with the exit status %d", e.What, e.ExitCode)
	if len(e.Output) > 0 {
		msg += ", output: " + string(e.Output)
	}
	return msg
}
