package spec

import (
	"fmt"
	"slices"
	"strings"
)

// Option names. Each name is bound to exactly one OptionDetails variant.
const (
	OptionNet = "net"
	OptionTor = "tor"
)

// OptionDetails is a typed per-feature option record. The set of variants is closed:
// *NetOptions and *TorOptions.
type OptionDetails interface {
	// OptionName returns the name this record is bound to
	OptionName() string

	clone() OptionDetails
}

// KnownOptions lists every registered option name
func KnownOptions() []string {
	return []string{OptionNet, OptionTor}
}

// DefaultOption returns the default record for a registered name
func DefaultOption(name string) (OptionDetails, error) {
	switch name {
	case OptionNet:
		return DefaultNetOptions(), nil
	case OptionTor:
		return DefaultTorOptions(), nil
	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownOption, name, strings.Join(KnownOptions(), ", "))
	}
}

// PortRange is an inclusive range of ports
type PortRange struct {
	Low  uint16
	High uint16
}

// SinglePort returns the range holding just p
func SinglePort(p uint16) PortRange {
	return PortRange{Low: p, High: p}
}

// Valid reports whether the bounds are ordered and non-zero
func (r PortRange) Valid() bool {
	return r.Low >= 1 && r.Low <= r.High
}

// Overlaps reports whether the two ranges share a port
func (r PortRange) Overlaps(o PortRange) bool {
	return r.Low <= o.High && o.Low <= r.High
}

func (r PortRange) String() string {
	if r.Low == r.High {
		return fmt.Sprintf("%d", r.Low)
	}
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// PortMapping forwards an inbound host range to a jail range
type PortMapping struct {
	Inbound   PortRange
	Forwarded PortRange
}

func (m PortMapping) String() string {
	return m.Inbound.String() + ":" + m.Forwarded.String()
}

// NetOptions controls network access of the jail
type NetOptions struct {
	OutboundWan  bool // public network
	OutboundLan  bool // local network
	OutboundHost bool // the host itself
	OutboundDNS  bool // name resolution

	InboundPortsTCP []PortMapping
	InboundPortsUDP []PortMapping
}

// DefaultNetOptions returns a record allowing nothing
func DefaultNetOptions() *NetOptions {
	return &NetOptions{}
}

func (n *NetOptions) OptionName() string { return OptionNet }

func (n *NetOptions) clone() OptionDetails {
	if n == nil {
		return (*NetOptions)(nil)
	}
	c := n.copy()
	return &c
}

func (n *NetOptions) copy() NetOptions {
	c := *n
	c.InboundPortsTCP = slices.Clone(n.InboundPortsTCP)
	c.InboundPortsUDP = slices.Clone(n.InboundPortsUDP)
	return c
}

// AllowOutbound reports whether any outbound permission is set
func (n NetOptions) AllowOutbound() bool {
	return n.OutboundWan || n.OutboundLan || n.OutboundHost || n.OutboundDNS
}

// AllowInbound reports whether any inbound port is forwarded
func (n NetOptions) AllowInbound() bool {
	return len(n.InboundPortsTCP) > 0 || len(n.InboundPortsUDP) > 0
}

// TorOptions controls the isolation service
type TorOptions struct {
	ControlPort bool // expose the control channel inside the jail
}

// DefaultTorOptions returns the default isolation service record
func DefaultTorOptions() *TorOptions {
	return &TorOptions{}
}

func (t *TorOptions) OptionName() string { return OptionTor }

func (t *TorOptions) clone() OptionDetails {
	if t == nil {
		return (*TorOptions)(nil)
	}
	c := *t
	return &c
}

// OptionExists reports whether name is present in the options
func (s *Spec) OptionExists(name string) bool {
	_, ok := s.Options[name]
	return ok
}

// OptionNet returns a copy of the network options, if configured
func (s *Spec) OptionNet() (NetOptions, bool) {
	n, ok := s.Options[OptionNet].(*NetOptions)
	if !ok || n == nil {
		return NetOptions{}, false
	}
	return n.copy(), true
}

// OptionNetWr returns the network options for modification, inserting the default
// record first when none is configured. Repeated calls return the same record.
// A name bound to another variant is left untouched and reported as ErrOptionMismatch.
func (s *Spec) OptionNetWr() (*NetOptions, error) {
	if s.Options == nil {
		s.Options = map[string]OptionDetails{}
	}
	switch existing := s.Options[OptionNet].(type) {
	case *NetOptions:
		if existing != nil {
			return existing, nil
		}
	case nil:
	default:
		return nil, fmt.Errorf("%w: %q is bound to %T", ErrOptionMismatch, OptionNet, existing)
	}
	n := DefaultNetOptions()
	s.Options[OptionNet] = n
	return n, nil
}

// OptionTor returns a copy of the isolation service options, if configured
func (s *Spec) OptionTor() (TorOptions, bool) {
	t, ok := s.Options[OptionTor].(*TorOptions)
	if !ok || t == nil {
		return TorOptions{}, false
	}
	return *t, true
}
