//go:build !linux && !freebsd

package sys

func clearFlags(path string) error {
	return ErrFlagsUnsupported
}
