package spec

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Rules selects which of the softer invariants Validate enforces
type Rules struct {
	// RunModeExclusive rejects an executable together with services
	RunModeExclusive bool
	// RejectPortOverlap rejects overlapping inbound ranges within one protocol
	RejectPortOverlap bool
}

// DefaultRules returns the rules applied by Validate
func DefaultRules() Rules {
	return Rules{
		RunModeExclusive:  true,
		RejectPortOverlap: false,
	}
}

// Validate checks s against DefaultRules
func (s *Spec) Validate() error {
	return s.ValidateWith(DefaultRules())
}

// ValidateWith checks every invariant and returns a *ValidationError describing the
// first violation found
func (s *Spec) ValidateWith(rules Rules) error {
	checks := []func(Rules) error{
		s.validateRunMode,
		s.validateOptions,
		s.validateBasePaths,
		s.validateShares,
		s.validatePackages,
		s.validateScripts,
	}
	for _, check := range checks {
		if err := check(rules); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spec) validateRunMode(rules Rules) error {
	if s.RunCmdArgs != "" && !s.HasExecutable() {
		return invalid("run.command", "arguments %q given without an executable", strings.TrimSpace(s.RunCmdArgs))
	}
	if s.HasExecutable() {
		if !filepath.IsAbs(s.RunCmdExecutable) {
			return invalid("run.command", "executable %q must be an absolute path", s.RunCmdExecutable)
		}
		if strings.ContainsAny(s.RunCmdExecutable, " \t\n") {
			return invalid("run.command", "executable %q contains whitespace", s.RunCmdExecutable)
		}
	}
	if rules.RunModeExclusive && s.HasExecutable() && s.HasServices() {
		return invalid("run", "an executable and services are mutually exclusive")
	}
	for i, svc := range s.RunServices {
		if strings.TrimSpace(svc) == "" {
			return invalid(fmt.Sprintf("run.service[%d]", i), "empty service name")
		}
	}
	return nil
}

func (s *Spec) validateOptions(rules Rules) error {
	for _, name := range slices.Sorted(maps.Keys(s.Options)) {
		details := s.Options[name]
		field := "options." + name
		if isNilDetails(details) {
			if _, err := DefaultOption(name); err != nil {
				return invalid(field, "unknown option")
			}
			return invalid(field, "option has no details")
		}
		if details.OptionName() != name {
			return invalid(field, "bound to a %q option record", details.OptionName())
		}
		switch d := details.(type) {
		case *NetOptions:
			if err := validatePorts(field+".inbound-tcp", d.InboundPortsTCP, rules); err != nil {
				return err
			}
			if err := validatePorts(field+".inbound-udp", d.InboundPortsUDP, rules); err != nil {
				return err
			}
		case *TorOptions:
		default:
			return invalid(field, "unknown option")
		}
	}
	return nil
}

func validatePorts(field string, mappings []PortMapping, rules Rules) error {
	for i, m := range mappings {
		if !m.Inbound.Valid() {
			return invalid(fmt.Sprintf("%s[%d]", field, i), "inbound range %s is not ordered within 1-65535", m.Inbound)
		}
		if !m.Forwarded.Valid() {
			return invalid(fmt.Sprintf("%s[%d]", field, i), "forwarded range %s is not ordered within 1-65535", m.Forwarded)
		}
		if !rules.RejectPortOverlap {
			continue
		}
		for j := 0; j < i; j++ {
			if m.Inbound.Overlaps(mappings[j].Inbound) {
				return invalid(fmt.Sprintf("%s[%d]", field, i), "inbound range %s overlaps %s", m.Inbound, mappings[j].Inbound)
			}
		}
	}
	return nil
}

func (s *Spec) validateBasePaths(Rules) error {
	for i, p := range s.BaseKeep {
		if err := checkJailPath(p); err != nil {
			return invalid(fmt.Sprintf("base.keep[%d]", i), "%v", err)
		}
	}
	for i, p := range s.BaseRemove {
		if err := checkJailPath(p); err != nil {
			return invalid(fmt.Sprintf("base.remove[%d]", i), "%v", err)
		}
	}
	for i, p := range s.BaseKeepWildcard {
		field := fmt.Sprintf("base.keep-wildcard[%d]", i)
		if !filepath.IsAbs(p) {
			return invalid(field, "pattern %q must be absolute", p)
		}
		if _, err := filepath.Match(p, ""); err != nil {
			return invalid(field, "pattern %q: %v", p, err)
		}
	}
	return nil
}

// checkJailPath requires an absolute, clean path other than the jail root
func checkJailPath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("empty path")
	case !filepath.IsAbs(p):
		return fmt.Errorf("path %q must be absolute", p)
	case filepath.Clean(p) != p:
		return fmt.Errorf("path %q is not clean", p)
	case p == "/":
		return fmt.Errorf("path %q names the jail root", p)
	}
	return nil
}

func (s *Spec) validateShares(Rules) error {
	check := func(section string, shares []Share) error {
		for i, sh := range shares {
			field := fmt.Sprintf("%s.share[%d]", section, i)
			if strings.TrimSpace(sh.Host) == "" {
				return invalid(field, "empty host path")
			}
			if err := checkJailPath(sh.Jail); err != nil {
				return invalid(field, "%v", err)
			}
		}
		return nil
	}
	if err := check("dirs", s.DirsShare); err != nil {
		return err
	}
	return check("files", s.FilesShare)
}

func (s *Spec) validatePackages(Rules) error {
	lists := []struct {
		field string
		names []string
	}{
		{"pkg.install", s.PkgInstall},
		{"pkg.add", s.PkgAdd},
		{"pkg.nuke", s.PkgNuke},
	}
	for _, l := range lists {
		for i, name := range l.names {
			if strings.TrimSpace(name) == "" {
				return invalid(fmt.Sprintf("%s[%d]", l.field, i), "empty package name")
			}
		}
	}
	for i, o := range s.PkgLocalOverride {
		field := fmt.Sprintf("pkg.local-override[%d]", i)
		if strings.TrimSpace(o.Package) == "" {
			return invalid(field, "empty package name")
		}
		if strings.TrimSpace(o.Source) == "" {
			return invalid(field, "empty override source for %q", o.Package)
		}
	}
	return nil
}

func (s *Spec) validateScripts(Rules) error {
	for _, section := range slices.Sorted(maps.Keys(s.Scripts)) {
		if strings.TrimSpace(section) == "" {
			return invalid("scripts", "empty section name")
		}
		for name := range s.Scripts[section] {
			if strings.TrimSpace(name) == "" {
				return invalid("scripts."+section, "empty script name")
			}
		}
	}
	return nil
}
