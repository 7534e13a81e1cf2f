package base

import "runtime"

// Version is a FreeBSD release providing the base system archive
type Version string

const (
	Release13_4 Version = "13.4-RELEASE"
	Release14_1 Version = "14.1-RELEASE"
	Release14_2 Version = "14.2-RELEASE"
)

var (
	// DefaultVersion is the release unpacked into new jails
	DefaultVersion = Release14_2

	// SupportedVersions lists all known releases
	SupportedVersions = []Version{
		Release13_4,
		Release14_1,
		Release14_2,
	}
)

const mirror = "https://download.freebsd.org/releases"

// DownloadURLs maps releases and architectures to base.txz locations
var DownloadURLs = map[Version]map[string]string{
	Release13_4: {
		"amd64": mirror + "/amd64/13.4-RELEASE/base.txz",
		"arm64": mirror + "/arm64/aarch64/13.4-RELEASE/base.txz",
	},
	Release14_1: {
		"amd64": mirror + "/amd64/14.1-RELEASE/base.txz",
		"arm64": mirror + "/arm64/aarch64/14.1-RELEASE/base.txz",
	},
	Release14_2: {
		"amd64": mirror + "/amd64/14.2-RELEASE/base.txz",
		"arm64": mirror + "/arm64/aarch64/14.2-RELEASE/base.txz",
	},
}

// GetArch returns the architecture name used by the release mirrors
func GetArch() string {
	return runtime.GOARCH
}

// URLFor returns the download URL of a release for arch
func URLFor(version Version, arch string) (string, error) {
	urls, ok := DownloadURLs[version]
	if !ok {
		return "", ErrUnsupportedVersion
	}
	url, ok := urls[arch]
	if !ok {
		return "", ErrUnsupportedArch
	}
	return url, nil
}
