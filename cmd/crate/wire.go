//go:build wireinject

package main

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	"github.com/kernel/crate/cmd/crate/config"
	"github.com/kernel/crate/lib/crate"
	"github.com/kernel/crate/lib/providers"
)

// application struct to hold initialized components
type application struct {
	Ctx     context.Context
	Logger  *slog.Logger
	Config  *config.Config
	Builder *crate.Builder
}

// initializeApp is the injector function
func initializeApp() (*application, func(), error) {
	panic(wire.Build(
		providers.ProvideConfig,
		providers.ProvideTelemetry,
		providers.ProvideLogger,
		providers.ProvideContext,
		providers.ProvidePaths,
		providers.ProvideRunner,
		providers.ProvideBaseManager,
		providers.ProvideUnpacker,
		providers.ProvidePkgManager,
		providers.ProvidePackager,
		providers.ProvideBuildMetrics,
		providers.ProvideBuilder,
		wire.Struct(new(application), "*"),
	))
}
