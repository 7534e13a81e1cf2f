package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	p := New("/var/lib/crate")

	assert.Equal(t, "/var/lib/crate", p.DataDir())
	assert.Equal(t, "/var/lib/crate/jails/_jail_create_", p.JailDir("_jail_create_"))
	assert.Equal(t, "/var/lib/crate/cache", p.CacheDir())
	assert.Equal(t, "/var/lib/crate/cache/base/14.1-RELEASE/amd64/base.txz", p.BaseArchive("14.1-RELEASE", "amd64"))
	assert.Equal(t, "/var/lib/crate/cache/oci", p.OCICache())
}
