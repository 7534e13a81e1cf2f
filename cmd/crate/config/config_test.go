package config

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/kernel/crate/lib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/crate", cfg.DataDir)
	assert.Equal(t, "_jail_create_", cfg.JailName)
	assert.Equal(t, "auto", cfg.UnpackMode)
	assert.Equal(t, 8*datasize.GB, cfg.MaxBaseSize)
	assert.Equal(t, 8, cfg.XzThreads)
	assert.Equal(t, "pkg", cfg.PkgCommand)
	assert.Equal(t, "tzst", cfg.CrateFormat)
	assert.False(t, cfg.CleanupOnFailure)
	assert.Empty(t, cfg.OtelEndpoint)
	assert.Equal(t, spec.DefaultRules(), cfg.Rules())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATA_DIR", "/tmp/crate")
	t.Setenv("MAX_BASE_SIZE", "512MB")
	t.Setenv("XZ_THREADS", "2")
	t.Setenv("CLEANUP_ON_FAILURE", "true")
	t.Setenv("CRATE_FORMAT", "cpio")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/crate", cfg.DataDir)
	assert.Equal(t, 512*datasize.MB, cfg.MaxBaseSize)
	assert.Equal(t, 2, cfg.XzThreads)
	assert.True(t, cfg.CleanupOnFailure)
	assert.Equal(t, "cpio", cfg.CrateFormat)
}

func TestLoadRules(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RUN_MODE_EXCLUSIVE", "false")
	t.Setenv("REJECT_PORT_OVERLAP", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, spec.Rules{RunModeExclusive: false, RejectPortOverlap: true}, cfg.Rules())
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MAX_BASE_SIZE", "lots"},
		{"XZ_THREADS", "zero"},
		{"XZ_THREADS", "-1"},
		{"CLEANUP_ON_FAILURE", "maybe"},
		{"REJECT_PORT_OVERLAP", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
