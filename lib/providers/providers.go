package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kernel/crate/cmd/crate/config"
	"github.com/kernel/crate/lib/base"
	"github.com/kernel/crate/lib/command"
	"github.com/kernel/crate/lib/crate"
	"github.com/kernel/crate/lib/images"
	"github.com/kernel/crate/lib/logger"
	"github.com/kernel/crate/lib/otel"
	"github.com/kernel/crate/lib/packaging"
	"github.com/kernel/crate/lib/paths"
	"github.com/kernel/crate/lib/pkgmgr"
	"github.com/kernel/crate/lib/spec"
)

// ProvideContext provides a base context carrying the logger
func ProvideContext(log *slog.Logger) context.Context {
	return logger.AddToContext(context.Background(), log)
}

// ProvideTelemetry provides the OpenTelemetry handles; the cleanup flushes exporters
func ProvideTelemetry(cfg *config.Config) (*otel.Provider, func(), error) {
	p, err := otel.Init(context.Background(), otel.Config{
		Endpoint: cfg.OtelEndpoint,
		Insecure: cfg.OtelInsecure,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Shutdown(context.Background()) }, nil
}

// ProvideLogger provides a structured logger, mirrored to the collector when
// telemetry is enabled
func ProvideLogger(cfg *config.Config, tel *otel.Provider) *slog.Logger {
	logCfg := logger.NewConfig()
	if cfg.LogLevel != "" {
		logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	handler := logger.New(os.Stderr, logCfg).Handler()
	return slog.New(logger.Tee(handler, tel.LogHandler))
}

// ProvideConfig provides the application configuration
func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

// ProvidePaths provides the paths abstraction
func ProvidePaths(cfg *config.Config) *paths.Paths {
	return paths.New(cfg.DataDir)
}

// ProvideRunner provides the external command runner
func ProvideRunner() command.Runner {
	return command.NewRunner()
}

// ProvideBaseManager provides the base archive manager
func ProvideBaseManager(p *paths.Paths, cfg *config.Config) base.Manager {
	return base.NewManager(p, base.Options{
		Archive: cfg.BaseArchive,
		MaxSize: cfg.MaxBaseSize,
	})
}

// ProvideUnpacker provides the unpacker selected by UNPACK_MODE
func ProvideUnpacker(p *paths.Paths, cfg *config.Config) (images.Unpacker, error) {
	return images.NewUnpacker(images.Mode(cfg.UnpackMode), images.Options{
		XzThreads: cfg.XzThreads,
		MaxBytes:  int64(cfg.MaxBaseSize.Bytes()),
		OCITag:    cfg.OCITag,
		CacheDir:  p.OCICache(),
		Insecure:  cfg.Insecure,
	})
}

// ProvidePkgManager provides the package manager
func ProvidePkgManager(runner command.Runner, cfg *config.Config) pkgmgr.Manager {
	return pkgmgr.NewManager(runner, cfg.PkgCommand)
}

// ProvidePackager provides the crate packager selected by CRATE_FORMAT
func ProvidePackager(runner command.Runner, cfg *config.Config) (packaging.Packager, error) {
	format, err := packaging.ParseFormat(cfg.CrateFormat)
	if err != nil {
		return nil, err
	}
	return packaging.New(format, runner)
}

// ProvideBuildMetrics provides the crate build metrics
func ProvideBuildMetrics(tel *otel.Provider) (*otel.BuildMetrics, error) {
	return otel.NewBuildMetrics(tel.Meter)
}

// ProvideBuilder provides the crate builder
func ProvideBuilder(
	p *paths.Paths,
	cfg *config.Config,
	baseManager base.Manager,
	unpacker images.Unpacker,
	pkg pkgmgr.Manager,
	packager packaging.Packager,
	metrics *otel.BuildMetrics,
	tel *otel.Provider,
) (*crate.Builder, error) {
	version := base.DefaultVersion
	if cfg.BaseVersion != "" {
		version = base.Version(cfg.BaseVersion)
		if _, err := base.URLFor(version, base.GetArch()); err != nil && cfg.BaseArchive == "" && cfg.BaseImageRef == "" {
			return nil, fmt.Errorf("BASE_VERSION: %w (supported: %s)", err, supportedVersions())
		}
	}

	user, err := spec.CurrentUser()
	if err != nil {
		return nil, err
	}

	rules := cfg.Rules()
	return crate.NewBuilder(p, baseManager, unpacker, pkg, packager, metrics, tel.Tracer, crate.Options{
		Rules:            &rules,
		JailName:         cfg.JailName,
		BaseVersion:      version,
		Source:           cfg.BaseImageRef,
		CleanupOnFailure: cfg.CleanupOnFailure,
		User:             user,
	}), nil
}

func supportedVersions() string {
	names := make([]string, len(base.SupportedVersions))
	for i, v := range base.SupportedVersions {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
