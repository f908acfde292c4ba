package download

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/errors"
)

// newRegistry starts an in-memory OCI registry and returns its host.
func newRegistry(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(registry.New())
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

// pushArtifact publishes an image built from the given layers under
// host/repoTag.
func pushArtifact(t *testing.T, host, repoTag string, layers ...mutate.Addendum) {
	t.Helper()
	img, err := mutate.Append(empty.Image, layers...)
	require.NoError(t, err)
	ref, err := name.ParseReference(host + "/" + repoTag)
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))
}

func binaryLayer(content []byte, title string) mutate.Addendum {
	add := mutate.Addendum{
		Layer: static.NewLayer(content, types.MediaType("application/octet-stream")),
	}
	if title != "" {
		add.Annotations = map[string]string{layerTitleAnnotation: title}
	}
	return add
}

func TestOCIResolveNamesLayersByTitleAnnotation(t *testing.T) {
	host := newRegistry(t)
	payload := []byte("app binary payload")
	pushArtifact(t, host, "acme/app:v1",
		binaryLayer(payload, "app-x86_64"),
		binaryLayer([]byte("checksums"), ""),
	)

	m := newTestManager()
	assets, err := m.Resolve(context.Background(), OCISource{Ref: "oci://" + host + "/acme/app:v1"})
	require.NoError(t, err)
	require.Len(t, assets, 2)

	assert.Equal(t, "app-x86_64", assets[0].Name)
	assert.Equal(t, int64(len(payload)), assets[0].Size)
	assert.Equal(t, sha256Hex(payload), assets[0].Digest)

	// A layer without a title annotation falls back to its index.
	assert.Equal(t, "layer-1", assets[1].Name)
}

func TestOCIFetchVerifiesLayerContent(t *testing.T) {
	host := newRegistry(t)
	payload := []byte("#!/bin/sh\necho app\n")
	pushArtifact(t, host, "acme/app:v1", binaryLayer(payload, "app"))

	m := newTestManager()
	assets, err := m.Resolve(context.Background(), OCISource{Ref: "oci://" + host + "/acme/app:v1"})
	require.NoError(t, err)
	require.Len(t, assets, 1)

	dir := t.TempDir()
	res, err := m.Fetch(context.Background(), assets[0], dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "app"), res.Path)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOCIResolveInvalidReference(t *testing.T) {
	m := newTestManager()
	_, err := m.Resolve(context.Background(), OCISource{Ref: "oci:// not a ref"})
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestOCIResolveUnknownArtifact(t *testing.T) {
	host := newRegistry(t)

	m := newTestManager()
	_, err := m.Resolve(context.Background(), OCISource{Ref: "oci://" + host + "/acme/missing:v1"})
	assert.ErrorIs(t, err, errors.ErrNetwork)
}
