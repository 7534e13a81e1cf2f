package sys

import (
	"errors"
	"fmt"
)

// ErrFlagsUnsupported is returned by ClearFlags on platforms without file flags
var ErrFlagsUnsupported = errors.New("file flags not supported on this platform")

// SyscallError reports an OS call that failed with an errno no caller tolerated
type SyscallError struct {
	Call string // e.g. "unlink (1)"
	Arg  string
	Err  error
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("system call: '%s' failed, arg=%s: %v", e.Call, e.Arg, e.Err)
}

func (e *SyscallError) Unwrap() error {
	return e.Err
}
