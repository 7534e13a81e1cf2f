// Package paths centralizes the on-disk layout used by crate.
package paths

import "path/filepath"

// Paths resolves locations below the data directory
type Paths struct {
	dataDir string
}

// New creates a Paths rooted at dataDir
func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory
func (p *Paths) DataDir() string {
	return p.dataDir
}

// JailsDir returns the directory holding scratch jail directories
func (p *Paths) JailsDir() string {
	return filepath.Join(p.dataDir, "jails")
}

// JailDir returns the scratch directory for the named jail
func (p *Paths) JailDir(name string) string {
	return filepath.Join(p.JailsDir(), name)
}

// CacheDir returns the download cache directory
func (p *Paths) CacheDir() string {
	return filepath.Join(p.dataDir, "cache")
}

// BaseArchive returns the cached base archive path for a version and arch
func (p *Paths) BaseArchive(version, arch string) string {
	return filepath.Join(p.CacheDir(), "base", version, arch, "base.txz")
}

// OCICache returns the shared OCI layout used for base images
func (p *Paths) OCICache() string {
	return filepath.Join(p.CacheDir(), "oci")
}
