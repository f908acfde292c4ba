// Package testutil provides fixtures for integration tests: an HTTP server
// that behaves like a porter repository and helpers to write a matching
// configuration file.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/porter/pkg/model"
	"github.com/glorpus-work/porter/pkg/repository"
)

// RepoServer serves a repository metadata document plus the package payloads
// it references.
type RepoServer struct {
	Server *httptest.Server
	mux    *http.ServeMux

	repoName string
	packages []model.PackageRecord
}

// NewRepoServer starts a repository server with no packages. The server is
// shut down automatically when the test finishes.
func NewRepoServer(t *testing.T, repoName string) *RepoServer {
	t.Helper()

	mux := http.NewServeMux()
	rs := &RepoServer{mux: mux, repoName: repoName}

	mux.HandleFunc("/metadata.json", func(w http.ResponseWriter, _ *http.Request) {
		meta := repository.Metadata{Name: rs.repoName, Packages: rs.packages}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(meta)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Server.Close)
	return rs
}

// MetadataURL returns the URL the sync engine should fetch.
func (rs *RepoServer) MetadataURL() string {
	return rs.Server.URL + "/metadata.json"
}

// AddPackage registers a package whose payload is the given body and returns
// its record. The origin URL and checksum are derived from the body.
func (rs *RepoServer) AddPackage(t *testing.T, name, version string, body []byte) model.PackageRecord {
	t.Helper()

	sum := sha256.Sum256(body)
	path := "/pkgs/" + name + "-" + version
	rs.mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})

	rec := model.PackageRecord{
		RepoName:  rs.repoName,
		PkgID:     name + "#" + rs.repoName,
		Name:      name,
		Version:   version,
		Checksum:  hex.EncodeToString(sum[:]),
		Size:      int64(len(body)),
		OriginURL: rs.Server.URL + path,
	}
	rs.packages = append(rs.packages, rec)
	return rec
}

// SetPackages replaces the package listing wholesale.
func (rs *RepoServer) SetPackages(records []model.PackageRecord) {
	rs.packages = records
}

// WriteConfig writes a configuration file rooted in a fresh temp directory
// that points at the repository server, and returns its path.
func (rs *RepoServer) WriteConfig(t *testing.T) string {
	t.Helper()

	rootDir := t.TempDir()
	configYAML := `repositories:
  - name: ` + rs.repoName + `
    url: ` + rs.MetadataURL() + `
    enabled: true
settings:
  root_dir: ` + rootDir + `
  log_level: error
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}
