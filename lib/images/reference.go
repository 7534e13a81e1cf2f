package images

import (
	"fmt"

	"github.com/distribution/reference"
	"github.com/google/go-containerregistry/pkg/name"
)

// ImageRef is a base image reference. Short names are expanded the way docker does
// ("freebsd" becomes "docker.io/library/freebsd:latest").
type ImageRef struct {
	// Name is the fully qualified reference
	Name string
	// Pinned is the hex of the manifest digest for references pinned by digest, which
	// is also the tag a pulled image is cached under
	Pinned string

	ref name.Reference
}

// ParseImageRef validates and expands s. insecure allows plain HTTP registries.
func ParseImageRef(s string, insecure bool) (ImageRef, error) {
	named, err := reference.ParseNormalizedNamed(s)
	if err != nil {
		return ImageRef{}, fmt.Errorf("%w: %s: %v", ErrInvalidName, s, err)
	}

	var out ImageRef
	if canonical, ok := named.(reference.Canonical); ok {
		out.Name = canonical.String()
		out.Pinned = canonical.Digest().Encoded()
	} else {
		out.Name = reference.TagNameOnly(named).String()
	}

	var opts []name.Option
	if insecure {
		opts = append(opts, name.Insecure)
	}
	if out.ref, err = name.ParseReference(out.Name, opts...); err != nil {
		return ImageRef{}, fmt.Errorf("%w: %s: %v", ErrInvalidName, s, err)
	}
	return out, nil
}

func (r ImageRef) String() string {
	return r.Name
}
