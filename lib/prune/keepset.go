package prune

import (
	"path/filepath"
	"strings"
)

// KeepSet is a set of absolute paths that pruning must leave in place.
// Membership is by exact cleaned path.
type KeepSet map[string]struct{}

// NewKeepSet builds a KeepSet from paths
func NewKeepSet(paths ...string) KeepSet {
	k := make(KeepSet, len(paths))
	for _, p := range paths {
		k.Add(p)
	}
	return k
}

// Add inserts p
func (k KeepSet) Add(p string) {
	k[filepath.Clean(p)] = struct{}{}
}

// Contains reports whether p itself is kept
func (k KeepSet) Contains(p string) bool {
	_, ok := k[filepath.Clean(p)]
	return ok
}

// Covers reports whether dir or anything below it is kept
func (k KeepSet) Covers(dir string) bool {
	dir = filepath.Clean(dir)
	prefix := dir + string(filepath.Separator)
	if dir == string(filepath.Separator) {
		prefix = dir
	}
	for p := range k {
		if p == dir || strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Under returns the kept paths strictly below dir
func (k KeepSet) Under(dir string) KeepSet {
	dir = filepath.Clean(dir)
	out := KeepSet{}
	for p := range k {
		if rel, err := filepath.Rel(dir, p); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			out[p] = struct{}{}
		}
	}
	return out
}
