// Package base locates the base system archive a crate is built from, downloading it
// into the cache on first use.
package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/kernel/crate/lib/logger"
	"github.com/kernel/crate/lib/paths"
)

// Manager resolves base archives
type Manager interface {
	// ArchivePath returns the cached archive location for a release
	ArchivePath(version Version) string
	// EnsureArchive returns a local archive for the release, downloading it when missing
	EnsureArchive(ctx context.Context, version Version) (string, error)
}

// Options tunes a Manager
type Options struct {
	// Archive, when set, is used as is and never downloaded
	Archive string
	// MaxSize bounds a download; zero means unlimited
	MaxSize datasize.ByteSize
	// Client performs downloads; nil means http.DefaultClient
	Client *http.Client
	// URLs overrides DownloadURLs
	URLs map[Version]map[string]string
}

type manager struct {
	paths *paths.Paths
	opts  Options
}

// NewManager creates a Manager caching archives below p
func NewManager(p *paths.Paths, opts Options) Manager {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.URLs == nil {
		opts.URLs = DownloadURLs
	}
	return &manager{paths: p, opts: opts}
}

func (m *manager) ArchivePath(version Version) string {
	if m.opts.Archive != "" {
		return m.opts.Archive
	}
	return m.paths.BaseArchive(string(version), GetArch())
}

func (m *manager) EnsureArchive(ctx context.Context, version Version) (string, error) {
	log := logger.FromContext(ctx)
	path := m.ArchivePath(version)

	if _, err := os.Stat(path); err == nil {
		log.DebugContext(ctx, "base archive present", "path", path)
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat base archive: %w", err)
	}
	if m.opts.Archive != "" {
		return "", fmt.Errorf("base archive %s: %w", path, os.ErrNotExist)
	}

	urls, ok := m.opts.URLs[version]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	url, ok := urls[GetArch()]
	if !ok {
		return "", fmt.Errorf("%w: %s for %s", ErrUnsupportedArch, GetArch(), version)
	}

	log.InfoContext(ctx, "downloading base archive", "version", version, "url", url)
	n, err := m.download(ctx, url, path)
	if err != nil {
		return "", err
	}
	log.InfoContext(ctx, "downloaded base archive", "path", path, "size", datasize.ByteSize(n).HR())
	return path, nil
}

// download fetches url into path through a temp file renamed into place
func (m *manager) download(ctx context.Context, url, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	resp, err := m.opts.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s returned %s", ErrDownloadFailed, url, resp.Status)
	}
	limit := int64(m.opts.MaxSize.Bytes())
	if limit > 0 && resp.ContentLength > limit {
		return 0, fmt.Errorf("%w: %d bytes exceeds %s", ErrTooLarge, resp.ContentLength, m.opts.MaxSize.HR())
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if limit > 0 && n > limit {
		return 0, fmt.Errorf("%w: exceeds %s", ErrTooLarge, m.opts.MaxSize.HR())
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("move base archive into place: %w", err)
	}
	return n, nil
}
