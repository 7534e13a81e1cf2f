package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
)

// document mirrors the YAML spec file. Field names follow the file's keys.
type document struct {
	Base *struct {
		Keep         []string `json:"keep,omitempty"`
		KeepWildcard []string `json:"keep-wildcard,omitempty"`
		Remove       []string `json:"remove,omitempty"`
	} `json:"base,omitempty"`
	Pkg *struct {
		Install       []string   `json:"install,omitempty"`
		Add           []string   `json:"add,omitempty"`
		Nuke          []string   `json:"nuke,omitempty"`
		LocalOverride [][]string `json:"local-override,omitempty"`
	} `json:"pkg,omitempty"`
	Run *struct {
		Command string   `json:"command,omitempty"`
		Service []string `json:"service,omitempty"`
	} `json:"run,omitempty"`
	Dirs *struct {
		Share [][]string `json:"share,omitempty"`
	} `json:"dirs,omitempty"`
	Files *struct {
		Share [][]string `json:"share,omitempty"`
	} `json:"files,omitempty"`
	Options map[string]json.RawMessage   `json:"options,omitempty"`
	Scripts map[string]map[string]string `json:"scripts,omitempty"`
}

type netDocument struct {
	Outbound   []string `json:"outbound,omitempty"`
	InboundTCP []string `json:"inbound-tcp,omitempty"`
	InboundUDP []string `json:"inbound-udp,omitempty"`
}

type torDocument struct {
	ControlPort bool `json:"control-port,omitempty"`
}

// Load reads and parses a spec file
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML spec document. It performs syntactic conversion only;
// invariants are checked by Validate.
func Parse(data []byte) (*Spec, error) {
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var doc document
	if !isNullDocument(js) {
		dec := json.NewDecoder(bytes.NewReader(js))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}

	s := New()
	if b := doc.Base; b != nil {
		s.BaseKeep = b.Keep
		s.BaseKeepWildcard = b.KeepWildcard
		s.BaseRemove = b.Remove
	}
	if p := doc.Pkg; p != nil {
		s.PkgInstall = p.Install
		s.PkgAdd = p.Add
		s.PkgNuke = p.Nuke
		for i, pair := range p.LocalOverride {
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: pkg.local-override[%d]: expected [package, source]", ErrParse, i)
			}
			s.PkgLocalOverride = append(s.PkgLocalOverride, Override{Package: pair[0], Source: pair[1]})
		}
	}
	if r := doc.Run; r != nil {
		s.RunCmdExecutable, s.RunCmdArgs = splitCommand(r.Command)
		s.RunServices = r.Service
	}
	if doc.Dirs != nil {
		if s.DirsShare, err = parseShares("dirs", doc.Dirs.Share); err != nil {
			return nil, err
		}
	}
	if doc.Files != nil {
		if s.FilesShare, err = parseShares("files", doc.Files.Share); err != nil {
			return nil, err
		}
	}
	for name, raw := range doc.Options {
		details, err := parseOption(name, raw)
		if err != nil {
			return nil, err
		}
		s.Options[name] = details
	}
	for section, scripts := range doc.Scripts {
		s.Scripts[section] = scripts
	}
	return s, nil
}

func isNullDocument(js []byte) bool {
	trimmed := bytes.TrimSpace(js)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// splitCommand splits a command line at the first space; the separator stays with the args
func splitCommand(cmd string) (string, string) {
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i], cmd[i:]
	}
	return cmd, ""
}

func parseShares(section string, pairs [][]string) ([]Share, error) {
	shares := make([]Share, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: %s.share[%d]: expected [host, jail]", ErrParse, section, i)
		}
		shares = append(shares, Share{Host: pair[0], Jail: pair[1]})
	}
	return shares, nil
}

func parseOption(name string, raw json.RawMessage) (OptionDetails, error) {
	field := "options." + name
	null := isNullDocument(raw)

	decode := func(v any) error {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrParse, field, err)
		}
		return nil
	}

	switch name {
	case OptionNet:
		if null {
			return nil, nil
		}
		var nd netDocument
		if err := decode(&nd); err != nil {
			return nil, err
		}
		return buildNetOptions(field, nd)
	case OptionTor:
		if null {
			return nil, nil
		}
		var td torDocument
		if err := decode(&td); err != nil {
			return nil, err
		}
		return &TorOptions{ControlPort: td.ControlPort}, nil
	default:
		return nil, fmt.Errorf("%w: %w %q (known: %s)", ErrParse, ErrUnknownOption, name, strings.Join(KnownOptions(), ", "))
	}
}

func buildNetOptions(field string, nd netDocument) (*NetOptions, error) {
	n := DefaultNetOptions()
	for _, dest := range nd.Outbound {
		switch strings.ToLower(strings.TrimSpace(dest)) {
		case "wan":
			n.OutboundWan = true
		case "lan":
			n.OutboundLan = true
		case "host":
			n.OutboundHost = true
		case "dns":
			n.OutboundDNS = true
		default:
			return nil, fmt.Errorf("%w: %s.outbound: unknown destination %q", ErrParse, field, dest)
		}
	}
	var err error
	if n.InboundPortsTCP, err = parseMappings(field+".inbound-tcp", nd.InboundTCP); err != nil {
		return nil, err
	}
	if n.InboundPortsUDP, err = parseMappings(field+".inbound-udp", nd.InboundUDP); err != nil {
		return nil, err
	}
	return n, nil
}

func parseMappings(field string, specs []string) ([]PortMapping, error) {
	var out []PortMapping
	for i, s := range specs {
		m, err := ParsePortMapping(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrParse, field, i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ParsePortMapping parses "IN[:FWD]" where each side is "PORT" or "LOW-HIGH".
// Without a forwarded side the inbound range is forwarded unchanged.
func ParsePortMapping(s string) (PortMapping, error) {
	in, fwd, hasFwd := strings.Cut(strings.TrimSpace(s), ":")
	inbound, err := ParsePortRange(in)
	if err != nil {
		return PortMapping{}, err
	}
	if !hasFwd {
		return PortMapping{Inbound: inbound, Forwarded: inbound}, nil
	}
	forwarded, err := ParsePortRange(fwd)
	if err != nil {
		return PortMapping{}, err
	}
	return PortMapping{Inbound: inbound, Forwarded: forwarded}, nil
}

// ParsePortRange parses "PORT" or "LOW-HIGH". Ordering is checked by Validate.
func ParsePortRange(s string) (PortRange, error) {
	first, last, isRange := strings.Cut(strings.TrimSpace(s), "-")
	low, err := parsePort(first)
	if err != nil {
		return PortRange{}, err
	}
	if !isRange {
		return SinglePort(low), nil
	}
	high, err := parsePort(last)
	if err != nil {
		return PortRange{}, err
	}
	return PortRange{Low: low, High: high}, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(v), nil
}
