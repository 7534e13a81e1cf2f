// Package crate builds crates: a base system is unpacked into a scratch jail, changed by
// the package manager, pruned down to what the spec keeps and packed into one file.
package crate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/kernel/crate/lib/base"
	"github.com/kernel/crate/lib/cleanup"
	"github.com/kernel/crate/lib/elfdeps"
	"github.com/kernel/crate/lib/images"
	"github.com/kernel/crate/lib/logger"
	"github.com/kernel/crate/lib/otel"
	"github.com/kernel/crate/lib/packaging"
	"github.com/kernel/crate/lib/paths"
	"github.com/kernel/crate/lib/pkgmgr"
	"github.com/kernel/crate/lib/policy"
	"github.com/kernel/crate/lib/prune"
	"github.com/kernel/crate/lib/spec"
	"github.com/kernel/crate/lib/sys"
	"github.com/nrednav/cuid2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultJailName names the scratch jail directory
const DefaultJailName = "_jail_create_"

// Options configures a Builder
type Options struct {
	JailName    string
	BaseVersion base.Version

	// Source overrides the unpack source (an image reference or OCI layout); when empty
	// the cached base archive for BaseVersion is used
	Source string

	// KeepJail leaves the jail directory in place after a successful build
	KeepJail bool
	// CleanupOnFailure removes the jail directory when a build fails
	CleanupOnFailure bool

	// Rules selects the spec validation rules; nil applies spec.DefaultRules
	Rules *spec.Rules

	User spec.User
	FS   sys.FS
}

// Request describes one crate build
type Request struct {
	Spec     *spec.Spec
	Output   string // defaults to the guessed name plus Extension
	KeepJail bool
}

// Result describes a finished build
type Result struct {
	ID       string
	Output   string
	Size     int64
	JailDir  string
	Pruned   prune.Stats
	Missing  []string // sonames of the run executable not found in the jail
	Duration time.Duration
}

// Builder runs the crate build pipeline
type Builder struct {
	paths    *paths.Paths
	base     base.Manager
	unpacker images.Unpacker
	pkg      pkgmgr.Manager
	packager packaging.Packager
	metrics  *otel.BuildMetrics
	tracer   trace.Tracer
	opts     Options
}

// NewBuilder creates a Builder. metrics and tracer may be nil.
func NewBuilder(
	p *paths.Paths,
	baseManager base.Manager,
	unpacker images.Unpacker,
	pkg pkgmgr.Manager,
	packager packaging.Packager,
	metrics *otel.BuildMetrics,
	tracer trace.Tracer,
	opts Options,
) *Builder {
	if opts.JailName == "" {
		opts.JailName = DefaultJailName
	}
	if opts.BaseVersion == "" {
		opts.BaseVersion = base.DefaultVersion
	}
	if opts.FS == nil {
		opts.FS = sys.OS{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(otel.InstrumentationName)
	}
	return &Builder{
		paths:    p,
		base:     baseManager,
		unpacker: unpacker,
		pkg:      pkg,
		packager: packager,
		metrics:  metrics,
		tracer:   tracer,
		opts:     opts,
	}
}

// JailDir returns the scratch directory builds run in
func (b *Builder) JailDir() string {
	return b.paths.JailDir(b.opts.JailName)
}

// Create builds one crate. Every failure is returned as *Error.
func (b *Builder) Create(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	id := cuid2.Generate()
	log := logger.FromContext(ctx).With("build_id", id)
	ctx = logger.AddToContext(ctx, log)

	ctx, span := b.tracer.Start(ctx, "crate.create", trace.WithAttributes(attribute.String("build_id", id)))
	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			err = &Error{Phase: PhaseCreate, Err: err}
		}
		span.End()
		b.metrics.RecordBuild(ctx, status, time.Since(start))
	}()

	if req.Spec == nil {
		return nil, errors.New("no spec given")
	}
	s := req.Spec.Preprocess(b.opts.User)
	rules := spec.DefaultRules()
	if b.opts.Rules != nil {
		rules = *b.opts.Rules
	}
	if err := s.ValidateWith(rules); err != nil {
		return nil, err
	}
	output, err := OutputPath(s, req.Output)
	if err != nil {
		return nil, err
	}

	res = &Result{ID: id, Output: output, JailDir: b.JailDir()}
	jailDir := res.JailDir
	pruner := prune.New(b.opts.FS)

	if err := os.MkdirAll(b.paths.JailsDir(), 0755); err != nil {
		return nil, fmt.Errorf("create jails directory: %w", err)
	}
	if err := sys.NewGuard(b.opts.FS).Mkdir(jailDir, 0700); err != nil {
		return nil, fmt.Errorf("create the jail directory: %w", err)
	}

	guard := cleanup.New()
	defer guard.Release(ctx, &err)
	removeJail := func() error {
		return b.step(ctx, "removing the jail directory", func(context.Context) error {
			return pruner.PruneHierarchical(jailDir)
		})
	}
	if b.opts.CleanupOnFailure {
		guard.Add("remove the jail directory", removeJail)
	}

	if err := b.step(ctx, "unpacking the base archive", func(ctx context.Context) error {
		return b.unpack(ctx, jailDir)
	}); err != nil {
		return nil, err
	}

	if s.HasPkgDirectives() {
		if err := b.step(ctx, "applying package directives", func(ctx context.Context) error {
			return b.pkg.Apply(ctx, jailDir, s)
		}); err != nil {
			return nil, err
		}
	}

	if err := b.step(ctx, "removing unnecessary parts", func(ctx context.Context) error {
		missing, err := b.prune(ctx, pruner, jailDir, s)
		res.Missing = missing
		return err
	}); err != nil {
		return nil, err
	}
	res.Pruned = pruner.Stats()
	b.metrics.RecordPrune(ctx, res.Pruned.Removed(), res.Pruned.FlagRetries)

	if err := b.step(ctx, "creating the crate file", func(ctx context.Context) error {
		size, err := b.packager.Create(ctx, jailDir, output)
		res.Size = size
		return err
	}); err != nil {
		return nil, err
	}

	guard.Dismiss()
	if !req.KeepJail && !b.opts.KeepJail {
		guard.Add("remove the jail directory", removeJail)
	}

	res.Duration = time.Since(start)
	log.InfoContext(ctx, "crate created", "output", output, "size", res.Size,
		"removed", res.Pruned.Removed(), "duration", res.Duration)
	return res, nil
}

// step runs fn inside its own span and logs its elapsed time
func (b *Builder) step(ctx context.Context, what string, fn func(context.Context) error) error {
	log := logger.FromContext(ctx)
	ctx, span := b.tracer.Start(ctx, what)
	defer span.End()

	log.InfoContext(ctx, what)
	start := time.Now()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, what+" failed", "error", err, "elapsed", time.Since(start))
		return err
	}
	log.InfoContext(ctx, what+" done", "elapsed", time.Since(start))
	return nil
}

func (b *Builder) unpack(ctx context.Context, jailDir string) error {
	src := b.opts.Source
	if src == "" {
		archive, err := b.base.EnsureArchive(ctx, b.opts.BaseVersion)
		if err != nil {
			return fmt.Errorf("ensure base archive: %w", err)
		}
		src = archive
	}
	if err := b.unpacker.Unpack(ctx, src, jailDir); err != nil {
		return fmt.Errorf("unpack %s: %w", src, err)
	}
	return nil
}

// prune removes what the policy drops, keeping the libraries the run executable links
// against. It returns the sonames that could not be found.
func (b *Builder) prune(ctx context.Context, pruner *prune.Pruner, jailDir string, s *spec.Spec) ([]string, error) {
	var extraKeep, missing []string
	if s.HasExecutable() {
		deps, err := b.executableDeps(ctx, jailDir, s.RunCmdExecutable)
		if err != nil {
			return nil, err
		}
		extraKeep, missing = deps.Paths, deps.Missing
	}

	steps, err := policy.Plan(jailDir, s, extraKeep)
	if err != nil {
		return missing, fmt.Errorf("plan pruning: %w", err)
	}
	return missing, policy.Apply(ctx, pruner, steps)
}

func (b *Builder) executableDeps(ctx context.Context, jailDir, exe string) (elfdeps.Result, error) {
	log := logger.FromContext(ctx)

	hostPath, err := securejoin.SecureJoin(jailDir, exe)
	if err != nil {
		return elfdeps.Result{}, fmt.Errorf("resolve %s: %w", exe, err)
	}
	isELF, err := elfdeps.IsELF(hostPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.WarnContext(ctx, "run executable is not in the jail", "executable", exe)
		return elfdeps.Result{}, nil
	}
	if err != nil {
		return elfdeps.Result{}, fmt.Errorf("inspect %s: %w", exe, err)
	}
	if !isELF {
		return elfdeps.Result{}, nil
	}

	deps, err := elfdeps.Needed(jailDir, exe)
	if err != nil {
		return elfdeps.Result{}, fmt.Errorf("resolve libraries of %s: %w", exe, err)
	}
	if len(deps.Missing) > 0 {
		log.WarnContext(ctx, "libraries of the run executable are missing", "executable", exe, "missing", deps.Missing)
	}
	return deps, nil
}
