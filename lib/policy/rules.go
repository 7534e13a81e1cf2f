package policy

// Action is what a rule does to its target
type Action int

const (
	// Unlink removes a single non-directory entry
	Unlink Action = iota
	// Rmdir removes an empty directory
	Rmdir
	// Flat removes a directory holding only files
	Flat
	// FlatExcept is Flat keeping the listed entries
	FlatExcept
	// Hier removes a whole subtree
	Hier
	// HierExcept is Hier keeping the listed paths and their ancestors
	HierExcept
	// Remove is Hier for directories and Unlink for anything else
	Remove
)

func (a Action) String() string {
	switch a {
	case Unlink:
		return "unlink"
	case Rmdir:
		return "rmdir"
	case Flat:
		return "flat"
	case FlatExcept:
		return "flat-except"
	case Hier:
		return "hier"
	case HierExcept:
		return "hier-except"
	case Remove:
		return "remove"
	}
	return "unknown"
}

// Rule is one entry of the base system prune table. Paths are relative to the jail root.
type Rule struct {
	Path   string
	Action Action
	Keep   []string
}

// DefaultRules returns the prune table for a FreeBSD base system, in application order
func DefaultRules() []Rule {
	return []Rule{
		{Path: "bin", Action: Flat},
		{Path: "boot", Action: Hier},
		{Path: "etc/periodic", Action: Hier},
		{Path: "usr/lib/include", Action: Unlink},
		{Path: "lib", Action: HierExcept, Keep: []string{"lib/libz.so.6", "lib/libc.so.7", "lib/libthr.so.3"}},
		{Path: "usr/lib", Action: HierExcept, Keep: []string{"usr/lib/liblzma.so.5", "usr/lib/libbz2.so.4"}},
		{Path: "usr/lib32", Action: Hier},
		{Path: "usr/include", Action: Hier},
		{Path: "sbin", Action: Hier},
		{Path: "usr/sbin", Action: Hier},
		{Path: "usr/libexec", Action: HierExcept, Keep: []string{"usr/libexec/ld-elf.so.1"}},
		{Path: "usr/share/dtrace", Action: Hier},
		{Path: "usr/share/doc", Action: Hier},
		{Path: "usr/share/examples", Action: Hier},
		{Path: "usr/share/bsdconfig", Action: Hier},
		{Path: "usr/share/games", Action: Hier},
		{Path: "usr/share/i18n", Action: Hier},
		{Path: "usr/share/man", Action: Hier},
		{Path: "usr/share/misc", Action: Hier},
		{Path: "usr/share/pc-sysinstall", Action: Hier},
		{Path: "usr/share/openssl", Action: Hier},
		{Path: "usr/tests", Action: Hier},
		{Path: "usr/src", Action: Rmdir},
		{Path: "usr/obj", Action: Rmdir},
		{Path: "var/db/etcupdate", Action: Hier},
		{Path: "usr/bin", Action: HierExcept, Keep: []string{"usr/bin/gzip"}},
		{Path: "rescue", Action: Flat},
	}
}
