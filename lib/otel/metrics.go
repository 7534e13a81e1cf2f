package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BuildMetrics holds metrics for the crate builder.
type BuildMetrics struct {
	BuildDuration metric.Float64Histogram
	BuildsTotal   metric.Int64Counter
	PrunedTotal   metric.Int64Counter
	FlagRetries   metric.Int64Counter
}

// NewBuildMetrics creates metrics for the crate builder.
func NewBuildMetrics(meter metric.Meter) (*BuildMetrics, error) {
	buildDuration, err := meter.Float64Histogram(
		"crate_build_duration_seconds",
		metric.WithDescription("Time to build a crate"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	buildsTotal, err := meter.Int64Counter(
		"crate_builds_total",
		metric.WithDescription("Total number of crate builds by status"),
	)
	if err != nil {
		return nil, err
	}

	prunedTotal, err := meter.Int64Counter(
		"crate_pruned_entries_total",
		metric.WithDescription("Total number of filesystem entries removed from jails"),
	)
	if err != nil {
		return nil, err
	}

	flagRetries, err := meter.Int64Counter(
		"crate_flag_clear_retries_total",
		metric.WithDescription("Total number of removals retried after clearing file flags"),
	)
	if err != nil {
		return nil, err
	}

	return &BuildMetrics{
		BuildDuration: buildDuration,
		BuildsTotal:   buildsTotal,
		PrunedTotal:   prunedTotal,
		FlagRetries:   flagRetries,
	}, nil
}

// RecordBuild records a finished build. Safe on a nil receiver.
func (m *BuildMetrics) RecordBuild(ctx context.Context, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.BuildDuration.Record(ctx, duration.Seconds(), attrs)
	m.BuildsTotal.Add(ctx, 1, attrs)
}

// RecordPrune records the outcome of pruning one jail.
func (m *BuildMetrics) RecordPrune(ctx context.Context, removed, retries int) {
	if m == nil {
		return
	}
	if removed > 0 {
		m.PrunedTotal.Add(ctx, int64(removed))
	}
	if retries > 0 {
		m.FlagRetries.Add(ctx, int64(retries))
	}
}
