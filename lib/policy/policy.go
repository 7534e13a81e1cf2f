// Package policy turns the base system prune table and a spec's base directives into
// an ordered list of prune steps for one jail.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/kernel/crate/lib/logger"
	"github.com/kernel/crate/lib/prune"
	"github.com/kernel/crate/lib/spec"
	"github.com/samber/lo"
)

// Step is a resolved rule: an absolute target inside the jail and what to keep below it
type Step struct {
	Action Action
	Target string
	Keep   prune.KeepSet
}

// Plan resolves the prune steps for the jail at root. Keep paths come from the spec's
// BaseKeep and BaseKeepWildcard plus extraKeep, all written as absolute paths inside the
// jail. Every rule whose subtree holds a kept path is relaxed so the path survives, and
// BaseRemove entries are appended after the table.
func Plan(root string, s *spec.Spec, extraKeep []string) ([]Step, error) {
	return PlanWith(DefaultRules(), root, s, extraKeep)
}

// PlanWith is Plan with an explicit rule table
func PlanWith(rules []Rule, root string, s *spec.Spec, extraKeep []string) ([]Step, error) {
	root = filepath.Clean(root)

	keep, err := resolveKeep(root, slices.Concat(s.BaseKeep, extraKeep), s.BaseKeepWildcard)
	if err != nil {
		return nil, err
	}

	var steps []Step
	for _, r := range rules {
		target := filepath.Join(root, r.Path)
		if protected(keep, target) {
			continue
		}
		linked, err := keptThroughLink(root, r.Path, keep)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}
		below := keep.Under(target)
		for _, k := range r.Keep {
			below.Add(filepath.Join(root, k))
		}
		step, ok := relax(r.Action, target, below)
		if ok {
			steps = append(steps, step)
		}
	}

	for _, p := range s.BaseRemove {
		target, err := resolveEntry(root, p)
		if err != nil {
			return nil, err
		}
		if protected(keep, target) {
			continue
		}
		linked, err := keptThroughLink(root, p, keep)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}
		steps = append(steps, Step{Action: Remove, Target: target, Keep: keep.Under(target)})
	}
	return steps, nil
}

// relax adjusts an action to the kept paths below its target. ok is false when the
// step must be dropped.
func relax(a Action, target string, below prune.KeepSet) (Step, bool) {
	step := Step{Action: a, Target: target, Keep: below}
	if len(below) == 0 {
		return step, true
	}
	switch a {
	case Unlink, Rmdir:
		return step, false
	case Hier:
		step.Action = HierExcept
	case Flat, FlatExcept:
		step.Action = FlatExcept
		step.Keep = directChildren(target, below)
	}
	return step, true
}

// directChildren maps kept paths to the entries of dir that contain them
func directChildren(dir string, keep prune.KeepSet) prune.KeepSet {
	out := prune.NewKeepSet()
	for p := range keep {
		rel, err := filepath.Rel(dir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		first, _, _ := strings.Cut(rel, string(filepath.Separator))
		out.Add(filepath.Join(dir, first))
	}
	return out
}

// keptThroughLink reports whether target is a symlink whose destination holds a kept
// path. Such a link is left in place so the kept path stays reachable through it.
func keptThroughLink(root, p string, keep prune.KeepSet) (bool, error) {
	entry, err := resolveEntry(root, p)
	if err != nil {
		return false, err
	}
	resolved, err := securejoin.SecureJoin(root, p)
	if err != nil {
		return false, fmt.Errorf("resolve %s inside %s: %w", p, root, err)
	}
	if resolved == entry {
		return false, nil
	}
	return protected(keep, resolved) || keep.Covers(resolved), nil
}

// protected reports whether target or one of its ancestors is kept
func protected(keep prune.KeepSet, target string) bool {
	for p := target; ; p = filepath.Dir(p) {
		if keep.Contains(p) {
			return true
		}
		if p == filepath.Dir(p) {
			return false
		}
	}
}

func resolveKeep(root string, paths, wildcards []string) (prune.KeepSet, error) {
	keep := prune.NewKeepSet()
	for _, p := range lo.Uniq(paths) {
		lexical, err := resolveEntry(root, p)
		if err != nil {
			return nil, err
		}
		keep.Add(lexical)
		// a kept symlink keeps what it points to as well
		resolved, err := securejoin.SecureJoin(root, p)
		if err != nil {
			return nil, fmt.Errorf("resolve keep path %s: %w", p, err)
		}
		keep.Add(resolved)
	}
	for _, pattern := range wildcards {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("expand wildcard %s: %w", pattern, err)
		}
		for _, m := range matches {
			if within(root, m) {
				keep.Add(m)
			}
		}
	}
	return keep, nil
}

// resolveEntry resolves the parent of p inside root, keeping the last element itself
// unresolved so symlinks are acted on rather than followed.
func resolveEntry(root, p string) (string, error) {
	p = filepath.Clean("/" + p)
	if p == "/" {
		return root, nil
	}
	parent, err := securejoin.SecureJoin(root, filepath.Dir(p))
	if err != nil {
		return "", fmt.Errorf("resolve %s inside %s: %w", p, root, err)
	}
	return filepath.Join(parent, filepath.Base(p)), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Apply runs the steps in order. Steps whose target does not exist are skipped.
func Apply(ctx context.Context, p *prune.Pruner, steps []Step) error {
	log := logger.FromContext(ctx)
	fsys := p.FS()

	for _, st := range steps {
		info, err := fsys.Lstat(st.Target)
		if errors.Is(err, fs.ErrNotExist) {
			log.DebugContext(ctx, "prune target missing, skipping", "action", st.Action, "target", st.Target)
			continue
		}
		if err != nil {
			return fmt.Errorf("stat prune target: %w", err)
		}

		if info.Mode()&fs.ModeSymlink != 0 && len(st.Keep) > 0 {
			log.DebugContext(ctx, "prune target is a symlink above kept paths, skipping", "action", st.Action, "target", st.Target)
			continue
		}

		action := st.Action
		if action == Remove {
			switch {
			case !info.IsDir():
				action = Unlink
			case len(st.Keep) > 0:
				action = HierExcept
			default:
				action = Hier
			}
		}
		log.DebugContext(ctx, "pruning", "action", action, "target", st.Target, "keep", len(st.Keep))

		switch action {
		case Unlink:
			err = p.RemoveEntry(st.Target)
		case Rmdir:
			err = p.RemoveEmptyDir(st.Target)
		case Flat:
			err = p.PruneFlat(st.Target)
		case FlatExcept:
			_, err = p.PruneFlatExcept(st.Target, st.Keep)
		case Hier:
			err = pruneTree(p, info, st.Target)
		case HierExcept:
			if info.IsDir() {
				_, err = p.PruneHierarchicalExcept(st.Target, st.Keep)
			} else {
				err = p.RemoveEntry(st.Target)
			}
		default:
			err = fmt.Errorf("unknown prune action %d", action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// pruneTree removes a subtree; a symlink standing in for the directory is removed itself
func pruneTree(p *prune.Pruner, info fs.FileInfo, target string) error {
	if !info.IsDir() {
		return p.RemoveEntry(target)
	}
	return p.PruneHierarchical(target)
}
