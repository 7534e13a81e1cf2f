package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	ggcrv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/kernel/crate/lib/logger"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// RegistryUnpacker pulls a base image from a registry and extracts its flattened
// filesystem. The src passed to Unpack is the image reference.
type RegistryUnpacker struct {
	// Platform selects from multi-arch indexes; nil means the registry default
	Platform *ggcrv1.Platform
	// Insecure allows plain HTTP registries
	Insecure bool
	// MaxBytes bounds the extracted content; zero means unlimited
	MaxBytes int64
	// CacheDir, when set, is an OCI layout the image is stored in by digest and
	// unpacked from with umoci. Without it the flattened image is extracted directly.
	CacheDir string
	// Options are passed to remote.Image after the defaults
	Options []remote.Option
}

func (u *RegistryUnpacker) Unpack(ctx context.Context, src, dest string) error {
	log := logger.FromContext(ctx)

	ref, err := ParseImageRef(src, u.Insecure)
	if err != nil {
		return err
	}
	start := time.Now()

	// a pinned image already in the cache needs no registry round trip
	if ref.Pinned != "" && u.CacheDir != "" && existsInLayout(ctx, u.CacheDir, ref.Pinned) {
		log.InfoContext(ctx, "base image cached", "ref", ref.Name, "layout", u.CacheDir)
		if err := unpackLayout(ctx, u.CacheDir, ref.Pinned, dest); err != nil {
			return err
		}
		log.InfoContext(ctx, "unpacked base image", "ref", ref.Name, "duration", time.Since(start))
		return nil
	}

	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}
	if u.Platform != nil {
		opts = append(opts, remote.WithPlatform(*u.Platform))
	}
	opts = append(opts, u.Options...)

	img, err := remote.Image(ref.ref, opts...)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return fmt.Errorf("fetch image %s: %w", ref, err)
	}
	digest, err := img.Digest()
	if err != nil {
		return fmt.Errorf("image digest: %w", err)
	}
	log.InfoContext(ctx, "pulling base image", "ref", ref.Name, "digest", digest.String())

	mediaType, err := img.MediaType()
	if err != nil {
		return fmt.Errorf("image media type: %w", err)
	}
	// umoci only reads OCI manifests; docker-typed images are extracted directly
	if u.CacheDir != "" && mediaType == types.OCIManifestSchema1 {
		tag := digest.Hex
		if !existsInLayout(ctx, u.CacheDir, tag) {
			if err := writeToLayout(u.CacheDir, tag, img); err != nil {
				return err
			}
		} else {
			log.DebugContext(ctx, "base image cached", "layout", u.CacheDir, "tag", tag)
		}
		if err := unpackLayout(ctx, u.CacheDir, tag, dest); err != nil {
			return err
		}
		log.InfoContext(ctx, "unpacked base image", "ref", ref.Name, "duration", time.Since(start))
		return nil
	}

	rc := mutate.Extract(img)
	defer rc.Close()

	n, err := ExtractTar(rc, dest, u.MaxBytes)
	if err != nil {
		return fmt.Errorf("extract image %s: %w", ref, err)
	}
	log.InfoContext(ctx, "unpacked base image", "ref", ref.Name, "bytes", n, "duration", time.Since(start))
	return nil
}

// writeToLayout stores img in the OCI layout at dir under tag, creating the layout
// when needed
func writeToLayout(dir, tag string, img ggcrv1.Image) error {
	p, err := layout.FromPath(dir)
	if err != nil {
		if p, err = layout.Write(dir, empty.Index); err != nil {
			return fmt.Errorf("create oci layout: %w", err)
		}
	}
	err = p.AppendImage(img, layout.WithAnnotations(map[string]string{
		v1.AnnotationRefName: tag,
	}))
	if err != nil {
		return fmt.Errorf("write image to oci layout: %w", err)
	}
	return nil
}
