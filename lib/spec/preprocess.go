package spec

import (
	"fmt"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// User is the identity used for $HOME and $USER substitution
type User struct {
	Name    string
	HomeDir string
}

// CurrentUser looks up the user running the process
func CurrentUser() (User, error) {
	u, err := user.Current()
	if err != nil {
		return User{}, fmt.Errorf("lookup current user: %w", err)
	}
	return User{Name: u.Username, HomeDir: u.HomeDir}, nil
}

// Preprocess returns a normalized copy of s; s itself is not modified.
//
//   - options bound to no record get their default record
//   - $HOME and $USER in host-side paths are replaced using u
//   - absolute base paths are cleaned and de-duplicated, keeping order
//   - run arguments get their leading separator
//   - an absolute run executable is added to BaseKeep
func (s *Spec) Preprocess(u User) *Spec {
	out := s.Clone()

	for name, details := range out.Options {
		if !isNilDetails(details) {
			continue
		}
		if def, err := DefaultOption(name); err == nil {
			out.Options[name] = def
		}
	}

	for i := range out.DirsShare {
		out.DirsShare[i].Host = SubstituteVars(out.DirsShare[i].Host, u)
	}
	for i := range out.FilesShare {
		out.FilesShare[i].Host = SubstituteVars(out.FilesShare[i].Host, u)
	}
	for i := range out.PkgLocalOverride {
		out.PkgLocalOverride[i].Source = SubstituteVars(out.PkgLocalOverride[i].Source, u)
	}

	out.BaseKeep = cleanPaths(out.BaseKeep)
	out.BaseRemove = cleanPaths(out.BaseRemove)
	out.BaseKeepWildcard = lo.Uniq(out.BaseKeepWildcard)

	if out.RunCmdArgs != "" && !strings.HasPrefix(out.RunCmdArgs, " ") {
		out.RunCmdArgs = " " + out.RunCmdArgs
	}
	if out.HasExecutable() && filepath.IsAbs(out.RunCmdExecutable) {
		exe := filepath.Clean(out.RunCmdExecutable)
		if !slices.Contains(out.BaseKeep, exe) {
			out.BaseKeep = append(out.BaseKeep, exe)
		}
	}

	return out
}

func isNilDetails(d OptionDetails) bool {
	switch v := d.(type) {
	case nil:
		return true
	case *NetOptions:
		return v == nil
	case *TorOptions:
		return v == nil
	}
	return false
}

func cleanPaths(paths []string) []string {
	cleaned := lo.Map(paths, func(p string, _ int) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return p
	})
	return lo.Uniq(cleaned)
}

// SubstituteVars replaces $HOME and $USER in s. A key only matches when followed by
// the end of the string or a non-alphanumeric byte, so $USERNAME is left alone.
// Keys whose value is unknown are left in place.
func SubstituteVars(s string, u User) string {
	if u.HomeDir != "" {
		s = substituteOne(s, "$HOME", u.HomeDir)
	}
	if u.Name != "" {
		s = substituteOne(s, "$USER", u.Name)
	}
	return s
}

func substituteOne(s, key, val string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, key)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := i + len(key)
		b.WriteString(s[:i])
		if end == len(s) || !isAlnum(s[end]) {
			b.WriteString(val)
		} else {
			b.WriteString(key)
		}
		s = s[end:]
	}
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
