// Package elfdeps recognizes ELF files and finds the shared libraries a program needs, looked up
// inside a jail root rather than on the host.
package elfdeps

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// minSize is the smallest size considered for an ELF object
const minSize = 0x80

var elfMagic = []byte(elf.ELFMAG)

// DefaultSearchDirs are the library directories searched inside the jail, in order
var DefaultSearchDirs = []string{"/lib", "/usr/lib", "/usr/local/lib", "/lib64", "/usr/lib64"}

// IsELF reports whether path is a regular file larger than 0x80 bytes that starts with
// the ELF magic. Object files (*.o) are never reported.
func IsELF(path string) (bool, error) {
	if strings.HasSuffix(path, ".o") {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() || info.Size() <= minSize {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sig := make([]byte, len(elfMagic))
	if _, err := io.ReadFull(f, sig); err != nil {
		return false, fmt.Errorf("read signature: %w", err)
	}
	return bytes.Equal(sig, elfMagic), nil
}

// Result lists the dependencies of a program as absolute paths inside the jail
type Result struct {
	// Paths holds every library found, including symlink targets, sorted
	Paths []string
	// Missing holds the sonames that could not be found
	Missing []string
}

// object is what the resolver needs from one ELF file
type object struct {
	interp  string
	needed  []string
	runpath []string
}

type loader func(hostPath string) (object, error)

// Needed returns the transitive DT_NEEDED closure of exe, resolved inside root, plus
// the program interpreter. exe is an absolute path inside the jail.
func Needed(root, exe string, searchDirs ...string) (Result, error) {
	if len(searchDirs) == 0 {
		searchDirs = DefaultSearchDirs
	}
	return resolve(root, exe, searchDirs, loadObject)
}

func resolve(root, exe string, searchDirs []string, load loader) (Result, error) {
	found := map[string]struct{}{}
	missing := map[string]struct{}{}
	seen := map[string]struct{}{}

	add := func(jailPath string) (string, error) {
		found[jailPath] = struct{}{}
		host, err := securejoin.SecureJoin(root, jailPath)
		if err != nil {
			return "", err
		}
		if resolved := jailRel(root, host); resolved != jailPath {
			found[resolved] = struct{}{}
		}
		return host, nil
	}

	exeHost, err := securejoin.SecureJoin(root, exe)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", exe, err)
	}
	queue := []string{exeHost}
	first := true

	for len(queue) > 0 {
		host := queue[0]
		queue = queue[1:]
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}

		obj, err := load(host)
		if err != nil {
			return Result{}, fmt.Errorf("read %s: %w", jailRel(root, host), err)
		}

		if first && obj.interp != "" {
			h, err := add(obj.interp)
			if err != nil {
				return Result{}, fmt.Errorf("resolve interpreter %s: %w", obj.interp, err)
			}
			if _, err := os.Stat(h); err != nil {
				delete(found, obj.interp)
				missing[obj.interp] = struct{}{}
			}
		}
		first = false

		dirs := append(slices.Clone(obj.runpath), searchDirs...)
		for _, soname := range obj.needed {
			jailPath, ok := lookup(root, soname, dirs)
			if !ok {
				missing[soname] = struct{}{}
				continue
			}
			h, err := add(jailPath)
			if err != nil {
				return Result{}, fmt.Errorf("resolve %s: %w", soname, err)
			}
			queue = append(queue, h)
		}
	}

	return Result{Paths: sortedKeys(found), Missing: sortedKeys(missing)}, nil
}

func lookup(root, soname string, dirs []string) (string, bool) {
	if strings.Contains(soname, "/") {
		dirs = []string{filepath.Dir(soname)}
		soname = filepath.Base(soname)
	}
	for _, d := range dirs {
		if strings.Contains(d, "$ORIGIN") || !filepath.IsAbs(d) {
			continue
		}
		jailPath := filepath.Join(d, soname)
		host, err := securejoin.SecureJoin(root, jailPath)
		if err != nil {
			continue
		}
		if info, err := os.Stat(host); err == nil && info.Mode().IsRegular() {
			return jailPath, true
		}
	}
	return "", false
}

// jailRel converts a host path below root back to an absolute path inside the jail
func jailRel(root, host string) string {
	rel, err := filepath.Rel(root, host)
	if err != nil {
		return host
	}
	return filepath.Join("/", rel)
}

func loadObject(path string) (object, error) {
	f, err := elf.Open(path)
	if err != nil {
		return object{}, err
	}
	defer f.Close()

	var obj object
	for _, p := range f.Progs {
		if p.Type != elf.PT_INTERP {
			continue
		}
		data, err := io.ReadAll(p.Open())
		if err != nil {
			return object{}, fmt.Errorf("read interpreter: %w", err)
		}
		obj.interp = string(bytes.TrimRight(data, "\x00"))
	}

	obj.needed, err = f.ImportedLibraries()
	if err != nil {
		return object{}, fmt.Errorf("read needed libraries: %w", err)
	}
	for _, tag := range []elf.DynTag{elf.DT_RUNPATH, elf.DT_RPATH} {
		vals, err := f.DynString(tag)
		if err != nil {
			continue
		}
		for _, v := range vals {
			obj.runpath = append(obj.runpath, filepath.SplitList(v)...)
		}
	}
	return obj, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
