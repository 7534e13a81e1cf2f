// Package spec holds the declarative description of a crate: what the base image
// keeps, which packages change, what runs, what is shared and which options apply.
//
// A Spec is parsed once, preprocessed once into a normalized copy, validated once and
// then treated as read-only by the rest of the pipeline.
package spec

import (
	"maps"
	"path"
	"slices"
	"strings"
)

// Override replaces a package with a locally provided package file
type Override struct {
	Package string
	Source  string
}

// Share maps a host path to a path inside the jail
type Share struct {
	Host string
	Jail string
}

// Spec describes one crate
type Spec struct {
	BaseKeep         []string // paths inside the jail that survive pruning
	BaseKeepWildcard []string // patterns expanded inside the jail before pruning
	BaseRemove       []string // paths removed in addition to the fixed policy

	PkgInstall       []string
	PkgAdd           []string
	PkgNuke          []string // deleted regardless of being nominally used
	PkgLocalOverride []Override

	// RunCmdArgs always starts with a separator when non-empty and is only
	// meaningful together with RunCmdExecutable.
	RunCmdExecutable string
	RunCmdArgs       string
	RunServices      []string

	DirsShare  []Share
	FilesShare []Share

	Options map[string]OptionDetails

	// Scripts maps a lifecycle section to script name and body
	Scripts map[string]map[string]string
}

// New returns an empty Spec
func New() *Spec {
	return &Spec{
		Options: map[string]OptionDetails{},
		Scripts: map[string]map[string]string{},
	}
}

// HasExecutable reports whether the spec runs a command
func (s *Spec) HasExecutable() bool {
	return s.RunCmdExecutable != ""
}

// HasServices reports whether the spec runs services
func (s *Spec) HasServices() bool {
	return len(s.RunServices) > 0
}

// RunCommand returns the full command line, or "" when no executable is set
func (s *Spec) RunCommand() string {
	if !s.HasExecutable() {
		return ""
	}
	return s.RunCmdExecutable + s.RunCmdArgs
}

// ExecutableName returns the base name of the run executable
func (s *Spec) ExecutableName() string {
	if !s.HasExecutable() {
		return ""
	}
	return path.Base(s.RunCmdExecutable)
}

// FirstServiceName returns the first word of the first service, or ""
func (s *Spec) FirstServiceName() string {
	if !s.HasServices() {
		return ""
	}
	fields := strings.Fields(s.RunServices[0])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// HasPkgDirectives reports whether any package action is requested
func (s *Spec) HasPkgDirectives() bool {
	return len(s.PkgInstall) > 0 || len(s.PkgAdd) > 0 || len(s.PkgNuke) > 0 || len(s.PkgLocalOverride) > 0
}

// Clone returns a deep copy
func (s *Spec) Clone() *Spec {
	c := &Spec{
		BaseKeep:         slices.Clone(s.BaseKeep),
		BaseKeepWildcard: slices.Clone(s.BaseKeepWildcard),
		BaseRemove:       slices.Clone(s.BaseRemove),
		PkgInstall:       slices.Clone(s.PkgInstall),
		PkgAdd:           slices.Clone(s.PkgAdd),
		PkgNuke:          slices.Clone(s.PkgNuke),
		PkgLocalOverride: slices.Clone(s.PkgLocalOverride),
		RunCmdExecutable: s.RunCmdExecutable,
		RunCmdArgs:       s.RunCmdArgs,
		RunServices:      slices.Clone(s.RunServices),
		DirsShare:        slices.Clone(s.DirsShare),
		FilesShare:       slices.Clone(s.FilesShare),
		Options:          make(map[string]OptionDetails, len(s.Options)),
		Scripts:          make(map[string]map[string]string, len(s.Scripts)),
	}
	for name, details := range s.Options {
		if details == nil {
			c.Options[name] = nil
			continue
		}
		c.Options[name] = details.clone()
	}
	for section, scripts := range s.Scripts {
		c.Scripts[section] = maps.Clone(scripts)
	}
	return c
}
