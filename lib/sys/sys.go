// Package sys wraps the OS primitives crate needs. Every wrapper fails fast with a
// *SyscallError unless the caller declared the errno tolerable.
package sys

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Tolerance reports whether a failed call's error may be ignored
type Tolerance func(err error) bool

// Errnos tolerates the listed errno values
func Errnos(errnos ...unix.Errno) Tolerance {
	return func(err error) bool {
		for _, errno := range errnos {
			if errors.Is(err, errno) {
				return true
			}
		}
		return false
	}
}

// Check turns a raw error from call into a *SyscallError unless a tolerance accepts it
func Check(err error, call, arg string, tolerate ...Tolerance) error {
	if err == nil {
		return nil
	}
	for _, t := range tolerate {
		if t != nil && t(err) {
			return nil
		}
	}
	return &SyscallError{Call: call, Arg: arg, Err: err}
}

// FS is the set of raw filesystem calls used by the pruner and the orchestrator.
// Implementations return the unwrapped OS error.
type FS interface {
	Lstat(path string) (os.FileInfo, error)
	ReadDir(dir string) ([]os.DirEntry, error)
	Unlink(path string) error
	Rmdir(path string) error
	Mkdir(path string, mode os.FileMode) error
	ClearFlags(path string) error
}

// OS is the FS backed by the running kernel
type OS struct{}

var _ FS = OS{}

func (OS) Lstat(path string) (os.FileInfo, error) { return os.Lstat(path) }

func (OS) ReadDir(dir string) ([]os.DirEntry, error) { return os.ReadDir(dir) }

func (OS) Unlink(path string) error { return unix.Unlink(path) }

func (OS) Rmdir(path string) error { return unix.Rmdir(path) }

func (OS) Mkdir(path string, mode os.FileMode) error {
	return unix.Mkdir(path, uint32(mode.Perm()))
}

// ClearFlags removes immutable and append-only flags from path
func (OS) ClearFlags(path string) error { return clearFlags(path) }

// Guard applies Check to the FS calls that carry no call-site specific name
type Guard struct {
	fs FS
}

// NewGuard wraps fs; a nil fs means OS{}
func NewGuard(fs FS) *Guard {
	if fs == nil {
		fs = OS{}
	}
	return &Guard{fs: fs}
}

// FS returns the underlying raw FS
func (g *Guard) FS() FS {
	return g.fs
}

func (g *Guard) Mkdir(path string, mode os.FileMode, tolerate ...Tolerance) error {
	return Check(g.fs.Mkdir(path, mode), "mkdir", path, tolerate...)
}

func (g *Guard) ClearFlags(path string, tolerate ...Tolerance) error {
	return Check(g.fs.ClearFlags(path), "chflags", path, tolerate...)
}
