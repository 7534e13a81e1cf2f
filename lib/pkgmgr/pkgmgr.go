// Package pkgmgr applies a spec's package directives to a jail with pkg(8), run from
// the host against the jail's root directory.
package pkgmgr

import (
	"context"
	"fmt"

	"github.com/kernel/crate/lib/command"
	"github.com/kernel/crate/lib/logger"
	"github.com/kernel/crate/lib/spec"
)

// DefaultCommand is the package manager binary
const DefaultCommand = "pkg"

// Manager runs package actions inside a jail directory
type Manager interface {
	Apply(ctx context.Context, jailDir string, s *spec.Spec) error
}

type manager struct {
	runner  command.Runner
	command string
}

// NewManager creates a Manager invoking cmd through runner; an empty cmd means "pkg"
func NewManager(runner command.Runner, cmd string) Manager {
	if cmd == "" {
		cmd = DefaultCommand
	}
	return &manager{runner: runner, command: cmd}
}

// Apply nukes, installs and adds packages, then swaps in local overrides. Each
// override is deleted and re-added from its source, in declaration order.
// A spec without package directives runs nothing.
func (m *manager) Apply(ctx context.Context, jailDir string, s *spec.Spec) error {
	if !s.HasPkgDirectives() {
		return nil
	}
	log := logger.FromContext(ctx)

	if len(s.PkgNuke) > 0 {
		log.InfoContext(ctx, "removing packages", "packages", s.PkgNuke)
		if err := m.pkg(ctx, jailDir, "remove packages", append([]string{"delete", "-y", "-f"}, s.PkgNuke...)...); err != nil {
			return err
		}
	}
	if len(s.PkgInstall) > 0 {
		log.InfoContext(ctx, "installing packages", "packages", s.PkgInstall)
		if err := m.pkg(ctx, jailDir, "install packages", append([]string{"install", "-y"}, s.PkgInstall...)...); err != nil {
			return err
		}
	}
	if len(s.PkgAdd) > 0 {
		log.InfoContext(ctx, "adding package files", "files", s.PkgAdd)
		if err := m.pkg(ctx, jailDir, "add package files", append([]string{"add"}, s.PkgAdd...)...); err != nil {
			return err
		}
	}
	for _, o := range s.PkgLocalOverride {
		log.InfoContext(ctx, "overriding package", "package", o.Package, "source", o.Source)
		if err := m.pkg(ctx, jailDir, "remove package "+o.Package, "delete", "-y", "-f", o.Package); err != nil {
			return err
		}
		if err := m.pkg(ctx, jailDir, "add package override "+o.Source, "add", o.Source); err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) pkg(ctx context.Context, jailDir, what string, args ...string) error {
	full := append([]string{"--rootdir", jailDir}, args...)
	if err := m.runner.Run(ctx, what, m.command, full...); err != nil {
		return fmt.Errorf("package manager: %w", err)
	}
	return nil
}
