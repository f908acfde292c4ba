// Package model provides the data structures shared by porter's engines:
// synced package records, installed package records and repository state.
package model

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// Repository describes a configured remote package source and its local
// metadata shard.
type Repository struct {
	Name         string    `json:"name"`
	MetadataURL  string    `json:"metadata_url"`
	ShardPath    string    `json:"shard_path"`
	LastSyncTime time.Time `json:"last_sync_time,omitempty"`
}

// GetURL returns the parsed metadata URL, or nil if it does not parse.
func (r *Repository) GetURL() *url.URL {
	u, err := url.Parse(r.MetadataURL)
	if err != nil {
		return nil
	}
	return u
}

// PackageRecord is the metadata describing one installable artifact as known
// from a synced repository. (RepoName, PkgID) is globally unique.
type PackageRecord struct {
	RepoName  string   `json:"repo_name"`
	PkgID     string   `json:"pkg_id"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Checksum  string   `json:"checksum"`
	Size      int64    `json:"size"`
	BinName   string   `json:"bin_name"`
	OriginURL string   `json:"origin_url"`
	Notes     []string `json:"notes,omitempty"`
}

// GetURL returns the parsed origin URL of this record, or nil if it does not
// parse.
func (p *PackageRecord) GetURL() *url.URL {
	u, err := url.Parse(p.OriginURL)
	if err != nil {
		return nil
	}
	return u
}

// GetVersion returns the parsed version, or nil for non-semver versions.
func (p *PackageRecord) GetVersion() *version.Version {
	v, err := version.NewVersion(p.Version)
	if err != nil {
		return nil
	}
	return v
}

// EffectiveBinName returns the binary name to place in the bin directory.
func (p *PackageRecord) EffectiveBinName() string {
	if p.BinName != "" {
		return p.BinName
	}
	return p.Name
}

// InstalledPackage is the committed local record of a successfully installed
// artifact. A row exists only when its install path is fully populated.
type InstalledPackage struct {
	PkgID          string    `json:"pkg_id"`
	RepoName       string    `json:"repo_name"`
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Checksum       string    `json:"checksum"`
	InstallPath    string    `json:"install_path"`
	BinSymlink     string    `json:"bin_symlink"`
	Profile        string    `json:"profile,omitempty"`
	PortableBase   string    `json:"portable_base,omitempty"`
	PortableHome   string    `json:"portable_home,omitempty"`
	PortableConfig string    `json:"portable_config,omitempty"`
	PortableShare  string    `json:"portable_share,omitempty"`
	InstalledAt    time.Time `json:"installed_at"`
}

// IsPortable reports whether any portable redirection is configured.
func (p *InstalledPackage) IsPortable() bool {
	return p.PortableBase != "" || p.PortableHome != "" || p.PortableConfig != "" || p.PortableShare != ""
}

// PortableDirs returns the home/config/share directories to create for this
// installation. Generic portable mode derives all three from the base dir.
func (p *InstalledPackage) PortableDirs() []string {
	if p.PortableBase != "" {
		return []string{
			filepath.Join(p.PortableBase, "home"),
			filepath.Join(p.PortableBase, "config"),
			filepath.Join(p.PortableBase, "share"),
		}
	}
	var dirs []string
	for _, d := range []string{p.PortableHome, p.PortableConfig, p.PortableShare} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// PackageRef identifies a package by id or name, optionally qualified by
// repository as "repo/name".
type PackageRef struct {
	RepoName string
	Name     string
}

// ParseRef parses a user-supplied package reference. A single "/" separates
// the repository qualifier from the package name; everything else is taken
// as a bare name.
func ParseRef(ref string) PackageRef {
	if idx := strings.Index(ref, "/"); idx > 0 && idx < len(ref)-1 {
		return PackageRef{RepoName: ref[:idx], Name: ref[idx+1:]}
	}
	return PackageRef{Name: ref}
}

// String renders the reference back to its user-facing form.
func (r PackageRef) String() string {
	if r.RepoName != "" {
		return r.RepoName + "/" + r.Name
	}
	return r.Name
}
