package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"github.com/kernel/crate/lib/spec"
)

type Config struct {
	DataDir     string
	BaseArchive string
	BaseVersion string
	JailName    string

	UnpackMode   string
	BaseImageRef string
	OCITag       string
	MaxBaseSize  datasize.ByteSize
	XzThreads    int
	Insecure     bool

	PkgCommand  string
	CrateFormat string

	CleanupOnFailure bool

	// Spec validation rules
	RunModeExclusive  bool
	RejectPortOverlap bool

	LogLevel     string
	LogFormat    string
	OtelEndpoint string
	OtelInsecure bool
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() (*Config, error) {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:      getEnv("DATA_DIR", "/var/lib/crate"),
		BaseArchive:  getEnv("BASE_ARCHIVE", ""),
		BaseVersion:  getEnv("BASE_VERSION", ""),
		JailName:     getEnv("JAIL_NAME", "_jail_create_"),
		UnpackMode:   getEnv("UNPACK_MODE", "auto"),
		BaseImageRef: getEnv("BASE_IMAGE_REF", ""),
		OCITag:       getEnv("OCI_TAG", "latest"),
		PkgCommand:   getEnv("PKG_COMMAND", "pkg"),
		CrateFormat:  getEnv("CRATE_FORMAT", "tzst"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		OtelEndpoint: getEnv("OTEL_ENDPOINT", ""),
	}

	if err := cfg.MaxBaseSize.UnmarshalText([]byte(getEnv("MAX_BASE_SIZE", "8GB"))); err != nil {
		return nil, fmt.Errorf("MAX_BASE_SIZE: %w", err)
	}

	var err error
	if cfg.XzThreads, err = getEnvInt("XZ_THREADS", 8); err != nil {
		return nil, err
	}
	if cfg.Insecure, err = getEnvBool("INSECURE_REGISTRY", false); err != nil {
		return nil, err
	}
	if cfg.CleanupOnFailure, err = getEnvBool("CLEANUP_ON_FAILURE", false); err != nil {
		return nil, err
	}
	if cfg.OtelInsecure, err = getEnvBool("OTEL_INSECURE", true); err != nil {
		return nil, err
	}

	defaults := spec.DefaultRules()
	if cfg.RunModeExclusive, err = getEnvBool("RUN_MODE_EXCLUSIVE", defaults.RunModeExclusive); err != nil {
		return nil, err
	}
	if cfg.RejectPortOverlap, err = getEnvBool("REJECT_PORT_OVERLAP", defaults.RejectPortOverlap); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Rules returns the spec validation rules selected by the configuration
func (c *Config) Rules() spec.Rules {
	return spec.Rules{
		RunModeExclusive:  c.RunModeExclusive,
		RejectPortOverlap: c.RejectPortOverlap,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, value)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: expected a boolean, got %q", key, value)
	}
	return b, nil
}
