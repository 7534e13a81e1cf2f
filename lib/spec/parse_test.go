package spec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `
base:
  keep:
    - /usr/lib/libz.so.6
  keep-wildcard:
    - /usr/share/zoneinfo/*
  remove:
    - /usr/share/locale
pkg:
  install: [curl, ca_root_nss]
  nuke: [perl5]
  local-override:
    - [openssl, $HOME/openssl.pkg]
run:
  command: /usr/local/bin/curl -s https://example.com
dirs:
  share:
    - [$HOME/data, /data]
files:
  share:
    - [/etc/resolv.conf, /etc/resolv.conf]
options:
  net:
    outbound: [wan, dns]
    inbound-tcp: ["8080:80", "3000-3010"]
    inbound-udp: ["53"]
  tor:
    control-port: true
scripts:
  run:before-start:
    greet: echo hello
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleSpec))
	require.NoError(t, err)

	assert.Equal(t, []string{"/usr/lib/libz.so.6"}, s.BaseKeep)
	assert.Equal(t, []string{"/usr/share/zoneinfo/*"}, s.BaseKeepWildcard)
	assert.Equal(t, []string{"/usr/share/locale"}, s.BaseRemove)
	assert.Equal(t, []string{"curl", "ca_root_nss"}, s.PkgInstall)
	assert.Equal(t, []string{"perl5"}, s.PkgNuke)
	assert.Equal(t, []Override{{Package: "openssl", Source: "$HOME/openssl.pkg"}}, s.PkgLocalOverride)
	assert.Equal(t, "/usr/local/bin/curl", s.RunCmdExecutable)
	assert.Equal(t, " -s https://example.com", s.RunCmdArgs)
	assert.Equal(t, []Share{{Host: "$HOME/data", Jail: "/data"}}, s.DirsShare)
	assert.Equal(t, []Share{{Host: "/etc/resolv.conf", Jail: "/etc/resolv.conf"}}, s.FilesShare)

	n, ok := s.OptionNet()
	require.True(t, ok)
	assert.True(t, n.OutboundWan)
	assert.True(t, n.OutboundDNS)
	assert.False(t, n.OutboundLan)
	assert.True(t, n.AllowOutbound())
	assert.Equal(t, []PortMapping{
		{Inbound: SinglePort(8080), Forwarded: SinglePort(80)},
		{Inbound: PortRange{Low: 3000, High: 3010}, Forwarded: PortRange{Low: 3000, High: 3010}},
	}, n.InboundPortsTCP)
	assert.Equal(t, []PortMapping{{Inbound: SinglePort(53), Forwarded: SinglePort(53)}}, n.InboundPortsUDP)

	tor, ok := s.OptionTor()
	require.True(t, ok)
	assert.True(t, tor.ControlPort)

	assert.Equal(t, "echo hello", s.Scripts["run:before-start"]["greet"])

	require.NoError(t, s.Validate())
}

func TestParseEmpty(t *testing.T) {
	s, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.False(t, s.HasExecutable())
	assert.NoError(t, s.Validate())
}

func TestParseNullOption(t *testing.T) {
	s, err := Parse([]byte("options:\n  net:\n"))
	require.NoError(t, err)

	assert.True(t, s.OptionExists(OptionNet))
	_, ok := s.OptionNet()
	assert.False(t, ok)

	out := s.Preprocess(User{})
	_, ok = out.OptionNet()
	assert.True(t, ok)
}

func TestParseServices(t *testing.T) {
	s, err := Parse([]byte("run:\n  service: [nginx, sshd]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"nginx", "sshd"}, s.RunServices)
	assert.False(t, s.HasExecutable())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not yaml", "base: [unclosed"},
		{"unknown section", "bogus: 1\n"},
		{"unknown option", "options:\n  vpn: {}\n"},
		{"unknown net key", "options:\n  net:\n    inbound: [1]\n"},
		{"bad outbound", "options:\n  net:\n    outbound: [moon]\n"},
		{"bad port", "options:\n  net:\n    inbound-tcp: [\"http\"]\n"},
		{"port too large", "options:\n  net:\n    inbound-tcp: [\"70000\"]\n"},
		{"bad share", "dirs:\n  share:\n    - [/only-one]\n"},
		{"bad override", "pkg:\n  local-override:\n    - [a, b, c]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseUnknownOptionIsTyped(t *testing.T) {
	_, err := Parse([]byte("options:\n  vpn: {}\n"))
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Contains(t, err.Error(), "known: net, tor")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crate.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSpec), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "curl", s.ExecutableName())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestParsePortMapping(t *testing.T) {
	tests := []struct {
		in      string
		want    PortMapping
		wantErr bool
	}{
		{"80", PortMapping{Inbound: SinglePort(80), Forwarded: SinglePort(80)}, false},
		{"8080:80", PortMapping{Inbound: SinglePort(8080), Forwarded: SinglePort(80)}, false},
		{"1000-1010:2000-2010", PortMapping{Inbound: PortRange{Low: 1000, High: 1010}, Forwarded: PortRange{Low: 2000, High: 2010}}, false},
		{"20-10", PortMapping{Inbound: PortRange{Low: 20, High: 10}, Forwarded: PortRange{Low: 20, High: 10}}, false},
		{"", PortMapping{}, true},
		{"a:b", PortMapping{}, true},
		{"1-", PortMapping{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePortMapping(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
