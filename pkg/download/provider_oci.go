package download

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/glorpus-work/porter/pkg/errors"
)

// layerTitleAnnotation names a layer in an OCI artifact manifest.
const layerTitleAnnotation = "org.opencontainers.image.title"

func (s OCISource) resolve(ctx context.Context, m *Manager) ([]Asset, error) {
	ref, err := name.ParseReference(strings.TrimPrefix(s.Ref, "oci://"))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "invalid registry reference %q: %v", s.Ref, err)
	}

	remoteOpts := []remote.Option{remote.WithContext(ctx)}
	if m.client != nil && m.client.Transport != nil {
		remoteOpts = append(remoteOpts, remote.WithTransport(m.client.Transport))
	}
	img, err := remote.Image(ref, remoteOpts...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "fetching manifest for %s: %v", ref, err)
	}
	manifest, err := img.Manifest()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "reading manifest for %s: %v", ref, err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "reading layers for %s: %v", ref, err)
	}

	assets := make([]Asset, 0, len(layers))
	for i, layer := range layers {
		asset := Asset{Name: fmt.Sprintf("layer-%d", i)}
		if i < len(manifest.Layers) {
			desc := manifest.Layers[i]
			if title := desc.Annotations[layerTitleAnnotation]; title != "" {
				asset.Name = title
			}
			asset.Size = desc.Size
			if desc.Digest.Algorithm == "sha256" {
				asset.Digest = desc.Digest.Hex
			}
		}
		asset.open = layerOpener(layer)
		assets = append(assets, asset)
	}
	if len(assets) == 0 {
		return nil, errors.Wrapf(errors.ErrNoMatchingAsset, "artifact %s has no layers", ref)
	}
	return assets, nil
}

func layerOpener(layer v1.Layer) func(ctx context.Context) (io.ReadCloser, error) {
	return func(_ context.Context) (io.ReadCloser, error) {
		return layer.Compressed()
	}
}
