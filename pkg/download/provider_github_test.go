package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/porter/pkg/errors"
)

const releaseJSON = `{
	"tag_name": "v1.2.3",
	"assets": [
		{"name": "tool-x86_64.tar.gz", "browser_download_url": "https://example.com/dl/tool-x86_64.tar.gz", "size": 1024},
		{"name": "tool-arm64.tar.gz", "browser_download_url": "https://example.com/dl/tool-arm64.tar.gz", "size": 2048}
	]
}`

func newGitHubManager(t *testing.T, mux *http.ServeMux) *Manager {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return NewManager(&http.Client{}, gh, 0)
}

func TestGitHubSourceLatestRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/tool/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, releaseJSON)
	})

	m := newGitHubManager(t, mux)
	assets, err := m.Resolve(context.Background(), GitHubSource{Owner: "acme", Repo: "tool"})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "tool-x86_64.tar.gz", assets[0].Name)
	assert.Equal(t, "https://example.com/dl/tool-x86_64.tar.gz", assets[0].URL.String())
	assert.Equal(t, int64(1024), assets[0].Size)
}

func TestGitHubSourceReleaseByTag(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/tool/releases/tags/v1.2.3", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, releaseJSON)
	})

	m := newGitHubManager(t, mux)
	assets, err := m.Resolve(context.Background(), GitHubSource{Owner: "acme", Repo: "tool", Tag: "v1.2.3"})
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestGitHubSourceEmptyRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/tool/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"tag_name": "v1.2.3", "assets": []}`)
	})

	m := newGitHubManager(t, mux)
	_, err := m.Resolve(context.Background(), GitHubSource{Owner: "acme", Repo: "tool"})
	assert.ErrorIs(t, err, errors.ErrNoMatchingAsset)
}

func TestGitHubSourceNotFound(t *testing.T) {
	mux := http.NewServeMux()
	m := newGitHubManager(t, mux)
	_, err := m.Resolve(context.Background(), GitHubSource{Owner: "acme", Repo: "missing"})
	assert.ErrorIs(t, err, errors.ErrNetwork)
}
