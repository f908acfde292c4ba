package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultHTTPTimeout, cfg.Settings.HTTP.Timeout)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Settings.MaxConcurrent)
	assert.Equal(t, DefaultUserAgent, cfg.Settings.HTTP.UserAgent)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromReader(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		expectErr error
		check     func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config",
			yaml: `
repositories:
  - name: core
    url: https://example.com/core.json
    enabled: true
  - name: extras
    url: https://example.com/extras.json
    enabled: false
settings:
  http:
    timeout: 10s
    user_agent: test/1.0
  max_concurrent: 2
  log_level: debug
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.Repositories, 2)
				assert.Len(t, cfg.EnabledRepositories(), 1)
				assert.Equal(t, 10*time.Second, cfg.Settings.HTTP.Timeout)
				assert.Equal(t, "test/1.0", cfg.Settings.HTTP.UserAgent)
				assert.Equal(t, 2, cfg.Settings.MaxConcurrent)
			},
		},
		{
			name: "defaults applied",
			yaml: `
repositories: []
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultHTTPTimeout, cfg.Settings.HTTP.Timeout)
				assert.Equal(t, DefaultMaxRetries, cfg.Settings.MaxRetries)
				assert.Equal(t, "info", cfg.Settings.LogLevel)
			},
		},
		{
			name: "duplicate repository name",
			yaml: `
repositories:
  - name: core
    url: https://a.example.com
  - name: core
    url: https://b.example.com
`,
			expectErr: errors.ErrConfigValidation,
		},
		{
			name: "repository without url",
			yaml: `
repositories:
  - name: core
`,
			expectErr: errors.ErrConfigValidation,
		},
		{
			name: "unknown active profile",
			yaml: `
active_profile: work
`,
			expectErr: errors.ErrProfileNotFound,
		},
		{
			name:      "malformed yaml",
			yaml:      "repositories: [",
			expectErr: errors.ErrConfigParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigFromReader(strings.NewReader(tt.yaml))
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxConcurrent, cfg.Settings.MaxConcurrent)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "porter.yaml")

	cfg := DefaultConfig()
	cfg.Repositories = []*RepositoryConfig{{Name: "core", URL: "https://example.com/core.json", Enabled: true}}
	require.NoError(t, cfg.SaveConfig(path))

	// No temp file left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, loaded.Repositories, 1)
	assert.Equal(t, "core", loaded.Repositories[0].Name)
}

func TestProfileQualifiedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.RootDir = "/srv/porter"
	cfg.Profiles = map[string]*ProfileConfig{"work": {Root: "/srv/porter-work"}}

	assert.Equal(t, "/srv/porter/packages", cfg.PackagesDir())
	assert.Equal(t, "/srv/porter/db", cfg.DBDir())
	assert.Equal(t, "/srv/porter/bin", cfg.BinDir())
	assert.Equal(t, "/srv/porter/repos", cfg.ReposDir())
	assert.Equal(t, "/srv/porter/cache", cfg.CacheDir())

	cfg.ActiveProfile = "work"
	require.NoError(t, cfg.Validate())

	// Profile changes the install and database roots only.
	assert.Equal(t, "/srv/porter-work/packages", cfg.PackagesDir())
	assert.Equal(t, "/srv/porter-work/db", cfg.DBDir())
	assert.Equal(t, "/srv/porter/bin", cfg.BinDir())
	assert.Equal(t, "/srv/porter/repos", cfg.ReposDir())
}

func TestExplicitPathOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.BinDir = "/opt/bin"
	cfg.Settings.PackagesDir = "/opt/pkgs"
	assert.Equal(t, "/opt/bin", cfg.BinDir())
	assert.Equal(t, "/opt/pkgs", cfg.PackagesDir())
}
