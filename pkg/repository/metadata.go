package repository

import (
	"encoding/json"
	"regexp"

	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/model"
)

// Metadata is the document a repository serves: its identity plus the full
// package listing. Each successful sync replaces the local shard and the
// database rows for the repository wholesale.
type Metadata struct {
	Name     string                `json:"name"`
	Version  string                `json:"version,omitempty"`
	Packages []model.PackageRecord `json:"packages"`
}

var checksumRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ParseMetadata decodes and validates a repository metadata document fetched
// for the repository named repoName.
func ParseMetadata(repoName string, data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(errors.ErrMetadataInvalid, "repository %s: %v", repoName, err)
	}
	if meta.Name != "" && meta.Name != repoName {
		return nil, errors.Wrapf(errors.ErrMetadataInvalid,
			"repository %s: metadata document names repository %s", repoName, meta.Name)
	}

	seen := make(map[string]bool, len(meta.Packages))
	for i := range meta.Packages {
		pkg := &meta.Packages[i]
		if pkg.PkgID == "" {
			return nil, errors.Wrapf(errors.ErrMetadataInvalid, "repository %s: package %d has no pkg_id", repoName, i)
		}
		if pkg.Name == "" {
			return nil, errors.Wrapf(errors.ErrMetadataInvalid, "repository %s: package %s has no name", repoName, pkg.PkgID)
		}
		if pkg.Version == "" {
			return nil, errors.Wrapf(errors.ErrMetadataInvalid, "repository %s: package %s has no version", repoName, pkg.PkgID)
		}
		if seen[pkg.PkgID] {
			return nil, errors.Wrapf(errors.ErrMetadataInvalid, "repository %s: duplicate pkg_id %s", repoName, pkg.PkgID)
		}
		if pkg.Checksum != "" && !checksumRe.MatchString(pkg.Checksum) {
			return nil, errors.Wrapf(errors.ErrMetadataInvalid,
				"repository %s: package %s has a malformed checksum", repoName, pkg.PkgID)
		}
		seen[pkg.PkgID] = true
		// The repo name recorded in the database is authoritative,
		// regardless of what the document claims per package.
		pkg.RepoName = repoName
	}
	return &meta, nil
}
