package pkgmgr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kernel/crate/lib/command"
	"github.com/kernel/crate/lib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	calls  []string
	failOn string
}

func (r *recordingRunner) Run(ctx context.Context, what, name string, args ...string) error {
	line := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, line)
	if r.failOn != "" && strings.Contains(line, r.failOn) {
		return &command.CommandError{What: what, ExitCode: 70}
	}
	return nil
}

func (r *recordingRunner) Output(ctx context.Context, what, name string, args ...string) ([]byte, error) {
	return nil, r.Run(ctx, what, name, args...)
}

func TestApplyOrder(t *testing.T) {
	s := spec.New()
	s.PkgNuke = []string{"perl5"}
	s.PkgInstall = []string{"curl", "ca_root_nss"}
	s.PkgAdd = []string{"/tmp/a.pkg"}
	s.PkgLocalOverride = []spec.Override{
		{Package: "openssl", Source: "/tmp/openssl.pkg"},
		{Package: "zlib", Source: "/tmp/zlib.pkg"},
	}

	r := &recordingRunner{}
	require.NoError(t, NewManager(r, "").Apply(context.Background(), "/j", s))

	assert.Equal(t, []string{
		"pkg --rootdir /j delete -y -f perl5",
		"pkg --rootdir /j install -y curl ca_root_nss",
		"pkg --rootdir /j add /tmp/a.pkg",
		"pkg --rootdir /j delete -y -f openssl",
		"pkg --rootdir /j add /tmp/openssl.pkg",
		"pkg --rootdir /j delete -y -f zlib",
		"pkg --rootdir /j add /tmp/zlib.pkg",
	}, r.calls)
}

func TestApplyNoDirectives(t *testing.T) {
	r := &recordingRunner{}
	require.NoError(t, NewManager(r, "pkg").Apply(context.Background(), "/j", spec.New()))
	assert.Empty(t, r.calls)
}

func TestApplyStopsOnFailure(t *testing.T) {
	s := spec.New()
	s.PkgInstall = []string{"curl"}
	s.PkgAdd = []string{"/tmp/a.pkg"}

	r := &recordingRunner{failOn: "install"}
	err := NewManager(r, "/usr/sbin/pkg-static").Apply(context.Background(), "/j", s)
	require.Error(t, err)

	var ce *command.CommandError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 70, ce.ExitCode)
	assert.Equal(t, []string{"/usr/sbin/pkg-static --rootdir /j install -y curl"}, r.calls)
}
