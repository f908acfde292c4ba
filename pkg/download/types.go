// Package download implements the download orchestration layer: resolving an
// abstract asset reference against its origin provider (direct URL, GitHub
// release listing, OCI registry), applying selection filters over the
// candidate assets, and performing verified transfers with bounded progress
// reporting and optional extraction.
package download

import (
	"context"
	"io"
	"net/url"
)

// Source locates candidate assets at an origin. The variant set is closed:
// adding a provider means adding a type implementing resolve, never branching
// on provider names.
type Source interface {
	resolve(ctx context.Context, m *Manager) ([]Asset, error)
}

// DirectSource is a plain URL; the candidate set is the single URL.
type DirectSource struct {
	URL string
}

// GitHubSource lists the assets of a GitHub release. An empty Tag selects the
// latest release.
type GitHubSource struct {
	Owner string
	Repo  string
	Tag   string
}

// OCISource lists the layers of an OCI registry artifact, e.g.
// ghcr.io/org/pkg:tag. Layers are named by their image title annotation.
type OCISource struct {
	Ref string
}

// Asset is one downloadable candidate produced by resolving a Source.
type Asset struct {
	Name   string
	URL    *url.URL // set for URL-addressable assets
	Size   int64
	Digest string // hex sha256 of the content, when the origin declares one

	// open streams the asset body for origins that are not plain URLs
	// (registry layers). When nil the asset is fetched over HTTP.
	open func(ctx context.Context) (io.ReadCloser, error)
}

// Options control a single fetch.
type Options struct {
	// Checksum is the expected hex sha256 of the payload; verified
	// incrementally during transfer when non-empty.
	Checksum string
	// SkipExisting short-circuits the fetch when the destination already
	// exists and is non-empty, without verification.
	SkipExisting bool
	// ForceOverwrite clobbers any existing destination, bypassing
	// SkipExisting.
	ForceOverwrite bool
	// Extract unpacks the fetched artifact after the rename commits.
	Extract bool
	// ExtractDir overrides the derived extraction directory.
	ExtractDir string
	// Progress receives transfer events; may be nil.
	Progress ProgressFunc
}

// BatchOptions control FetchAll.
type BatchOptions struct {
	Dir         string // destination directory; must be absolute
	Concurrency int    // parallel transfers; <=0 selects a default
	Progress    ProgressFunc
}

// FetchResult describes a completed (or skipped) fetch.
type FetchResult struct {
	Path    string
	Skipped bool
}
