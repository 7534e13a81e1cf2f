// Package command runs external programs synchronously and reports failures as
// *CommandError values.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kernel/crate/lib/logger"
)

// Runner runs external commands
type Runner interface {
	// Run executes name with args and waits for it. what describes the attempt.
	Run(ctx context.Context, what string, name string, args ...string) error

	// Output is Run returning standard output
	Output(ctx context.Context, what string, name string, args ...string) ([]byte, error)
}

// ExecRunner is the Runner backed by os/exec
type ExecRunner struct {
	// Dir is the working directory, empty for the current one
	Dir string
	// Stdout and Stderr receive the process streams when Run is used.
	// Nil captures them into the CommandError instead.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns an ExecRunner capturing output
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, what string, name string, args ...string) error {
	if name == "" {
		return ErrEmptyCommand
	}
	log := logger.FromContext(ctx)
	log.DebugContext(ctx, "running command", "what", what, "cmd", name+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var captured bytes.Buffer
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = &captured
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &captured
	}

	start := time.Now()
	err := cmd.Run()
	log.DebugContext(ctx, "command finished", "what", what, "duration", time.Since(start))
	return AsCommandError(err, what, captured.Bytes())
}

func (r *ExecRunner) Output(ctx context.Context, what string, name string, args ...string) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, AsCommandError(err, what, stderr.Bytes())
	}
	return out, nil
}

// AsCommandError converts the error of a finished exec.Cmd. A non-zero exit becomes a
// *CommandError; failures to start the process are wrapped unchanged.
func AsCommandError(err error, what string, output []byte) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CommandError{
			What:     what,
			ExitCode: exitErr.ExitCode(),
			Output:   bytes.TrimSpace(output),
		}
	}
	return fmt.Errorf("run external command '%s': %w", what, err)
}
