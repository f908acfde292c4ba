// Package config provides configuration management for porter. It handles
// loading, validating and saving the YAML configuration file, resolves the
// well-known filesystem roots (bin, database, cache, packages, repositories)
// possibly qualified by an active profile, and carries the HTTP client
// settings used by the download layer. The configuration value is immutable
// after load and passed by reference into every core call.
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Repository configuration
	Repositories []*RepositoryConfig `yaml:"repositories"`

	// Profiles select alternate roots for installed packages and database.
	Profiles map[string]*ProfileConfig `yaml:"profiles,omitempty"`

	// ActiveProfile names the profile in effect; empty means the default
	// root layout.
	ActiveProfile string `yaml:"active_profile,omitempty"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// RepositoryConfig represents a single configured repository.
type RepositoryConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ProfileConfig overrides the root directory packages and database resolve
// against. It changes only which roots are read, never package identity.
type ProfileConfig struct {
	Root string `yaml:"root"`
}

// HTTPSettings carries the transport parameters applied to every outgoing
// request.
type HTTPSettings struct {
	Timeout   time.Duration     `yaml:"timeout"`
	Proxy     string            `yaml:"proxy,omitempty"`
	UserAgent string            `yaml:"user_agent,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// GitHubToken authenticates release-host listings when set.
	GitHubToken string `yaml:"github_token,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// RootDir is the base directory all other paths derive from unless
	// overridden individually.
	RootDir  string `yaml:"root_dir,omitempty"`
	BinDir   string `yaml:"bin_dir,omitempty"`
	DBDir    string `yaml:"db_dir,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty"`
	// PackagesDir is the install root; profile-qualified.
	PackagesDir string `yaml:"packages_dir,omitempty"`
	// ReposDir holds one metadata shard file per configured repository.
	ReposDir string `yaml:"repos_dir,omitempty"`

	HTTP HTTPSettings `yaml:"http"`

	// MaxConcurrent bounds parallel syncs and downloads.
	MaxConcurrent int `yaml:"max_concurrent"`
	// MaxRetries bounds download retry attempts for transient errors.
	MaxRetries int `yaml:"max_retries"`

	LogLevel string `yaml:"log_level"`
}

// Default configuration values.
const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 4
	DefaultMaxRetries    = 3
	DefaultUserAgent     = "porter/1.0"
	YAMLIndent           = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	root := defaultRootDir()
	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings: Settings{
			RootDir: root,
			HTTP: HTTPSettings{
				Timeout:   DefaultHTTPTimeout,
				UserAgent: DefaultUserAgent,
			},
			MaxConcurrent: DefaultMaxConcurrent,
			MaxRetries:    DefaultMaxRetries,
			LogLevel:      "info",
		},
	}
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate user config directory")
	}
	return filepath.Join(configDir, "porter", "config.yaml"), nil
}

func defaultRootDir() string {
	dataDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dataDir, ".local", "share", "porter")
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves configuration to a file via a temporary file in the same
// directory followed by a rename, so concurrent readers never observe a torn
// write.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeDefault); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to encode config")
	}
	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to replace config file")
	}
	return nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Settings.RootDir == "" {
		c.Settings.RootDir = defaults.Settings.RootDir
	}
	if c.Settings.HTTP.Timeout == 0 {
		c.Settings.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Settings.HTTP.UserAgent == "" {
		c.Settings.HTTP.UserAgent = DefaultUserAgent
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Settings.MaxRetries == 0 {
		c.Settings.MaxRetries = DefaultMaxRetries
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	repoNames := make(map[string]bool, len(c.Repositories))
	for _, repo := range c.Repositories {
		if repo.Name == "" {
			return errors.Wrap(errors.ErrConfigValidation, "repository name cannot be empty")
		}
		if repo.URL == "" {
			return errors.Wrapf(errors.ErrConfigValidation, "repository %s has no URL", repo.Name)
		}
		if repoNames[repo.Name] {
			return errors.Wrapf(errors.ErrConfigValidation, "duplicate repository name: %s", repo.Name)
		}
		repoNames[repo.Name] = true
	}
	if c.ActiveProfile != "" {
		if _, ok := c.Profiles[c.ActiveProfile]; !ok {
			return errors.Wrapf(errors.ErrProfileNotFound, "active profile %s is not defined", c.ActiveProfile)
		}
	}
	if c.Settings.HTTP.Timeout < 0 {
		return errors.Wrap(errors.ErrConfigValidation, "http timeout cannot be negative")
	}
	if c.Settings.MaxConcurrent < 1 {
		return errors.Wrap(errors.ErrConfigValidation, "max_concurrent must be at least 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Settings.LogLevel] {
		return errors.Wrapf(errors.ErrConfigValidation, "unknown log level: %s", c.Settings.LogLevel)
	}
	return nil
}

// GetRepository returns the configured repository with the given name, or nil.
func (c *Config) GetRepository(name string) *RepositoryConfig {
	for _, repo := range c.Repositories {
		if repo.Name == name {
			return repo
		}
	}
	return nil
}

// EnabledRepositories returns the configured repositories that are enabled,
// in configuration order.
func (c *Config) EnabledRepositories() []*RepositoryConfig {
	out := make([]*RepositoryConfig, 0, len(c.Repositories))
	for _, repo := range c.Repositories {
		if repo.Enabled {
			out = append(out, repo)
		}
	}
	return out
}

// profileRoot resolves the root directory the active profile maps to.
func (c *Config) profileRoot() string {
	if c.ActiveProfile != "" {
		if p, ok := c.Profiles[c.ActiveProfile]; ok && p.Root != "" {
			return p.Root
		}
	}
	return c.Settings.RootDir
}

// BinDir returns the shared binary directory holding install symlinks.
func (c *Config) BinDir() string {
	if c.Settings.BinDir != "" {
		return c.Settings.BinDir
	}
	return filepath.Join(c.Settings.RootDir, "bin")
}

// DBDir returns the profile-qualified database directory.
func (c *Config) DBDir() string {
	if c.Settings.DBDir != "" {
		return c.Settings.DBDir
	}
	return filepath.Join(c.profileRoot(), "db")
}

// CacheDir returns the cache directory for staged downloads.
func (c *Config) CacheDir() string {
	if c.Settings.CacheDir != "" {
		return c.Settings.CacheDir
	}
	return filepath.Join(c.Settings.RootDir, "cache")
}

// PackagesDir returns the profile-qualified install root. Installs land at
// <packages>/<pkg_id>/<version>/.
func (c *Config) PackagesDir() string {
	if c.Settings.PackagesDir != "" {
		return c.Settings.PackagesDir
	}
	return filepath.Join(c.profileRoot(), "packages")
}

// ReposDir returns the directory holding one metadata shard per repository.
func (c *Config) ReposDir() string {
	if c.Settings.ReposDir != "" {
		return c.Settings.ReposDir
	}
	return filepath.Join(c.Settings.RootDir, "repos")
}
