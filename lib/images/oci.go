package images

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kernel/crate/lib/logger"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	rspec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/umoci/oci/cas/dir"
	"github.com/opencontainers/umoci/oci/casext"
	"github.com/opencontainers/umoci/oci/layer"
)

// OCIUnpacker unpacks an image tagged in a local OCI layout. The src passed to
// Unpack is the layout directory.
type OCIUnpacker struct {
	// Tag names the image inside the layout
	Tag string
}

func (u *OCIUnpacker) Unpack(ctx context.Context, src, dest string) error {
	start := time.Now()
	if err := unpackLayout(ctx, src, u.Tag, dest); err != nil {
		return err
	}
	logger.FromContext(ctx).InfoContext(ctx, "unpacked oci image",
		"layout", src, "tag", u.Tag, "duration", time.Since(start))
	return nil
}

// existsInLayout checks if a tag already exists in the OCI layout
func existsInLayout(ctx context.Context, layoutDir, tag string) bool {
	casEngine, err := dir.Open(layoutDir)
	if err != nil {
		return false
	}
	defer casEngine.Close()

	engine := casext.NewEngine(casEngine)
	descriptorPaths, err := engine.ResolveReference(ctx, tag)
	if err != nil {
		return false
	}
	return len(descriptorPaths) > 0
}

// unpackLayout unpacks all layers of tag to targetDir using umoci
func unpackLayout(ctx context.Context, layoutDir, tag, targetDir string) error {
	casEngine, err := dir.Open(layoutDir)
	if err != nil {
		return fmt.Errorf("open oci layout: %w", err)
	}
	defer casEngine.Close()

	engine := casext.NewEngine(casEngine)

	descriptorPaths, err := engine.ResolveReference(ctx, tag)
	if err != nil {
		return fmt.Errorf("resolve reference: %w", err)
	}
	if len(descriptorPaths) == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, tag, layoutDir)
	}

	manifestBlob, err := engine.FromDescriptor(ctx, descriptorPaths[0].Descriptor())
	if err != nil {
		return fmt.Errorf("get manifest: %w", err)
	}
	// casext parses manifests, so Data is already a v1.Manifest
	manifest, ok := manifestBlob.Data.(v1.Manifest)
	if !ok {
		return fmt.Errorf("manifest data is not v1.Manifest (got %T)", manifestBlob.Data)
	}

	// umoci needs the target to exist
	if err := os.MkdirAll(targetDir, 0700); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}

	err = layer.UnpackRootfs(ctx, casEngine, targetDir, manifest, &layer.UnpackOptions{
		OnDiskFormat: layer.DirRootfs{MapOptions: mapOptions()},
	})
	if err != nil {
		return fmt.Errorf("unpack rootfs: %w", err)
	}
	return nil
}

// mapOptions keeps ownership as recorded when running as root. Otherwise container
// root is mapped to the current user and chown failures are ignored.
func mapOptions() layer.MapOptions {
	if os.Geteuid() == 0 {
		return layer.MapOptions{}
	}
	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	return layer.MapOptions{
		Rootless: true,
		UIDMappings: []rspec.LinuxIDMapping{
			{HostID: uid, ContainerID: 0, Size: 1},
		},
		GIDMappings: []rspec.LinuxIDMapping{
			{HostID: gid, ContainerID: 0, Size: 1},
		},
	}
}
