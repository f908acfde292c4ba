package download

import (
	"context"
	"net/url"

	"github.com/google/go-github/v80/github"

	"github.com/glorpus-work/porter/pkg/errors"
)

func (s GitHubSource) resolve(ctx context.Context, m *Manager) ([]Asset, error) {
	var (
		release *github.RepositoryRelease
		err     error
	)
	if s.Tag == "" {
		release, _, err = m.github.Repositories.GetLatestRelease(ctx, s.Owner, s.Repo)
	} else {
		release, _, err = m.github.Repositories.GetReleaseByTag(ctx, s.Owner, s.Repo, s.Tag)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "listing release %s/%s: %v", s.Owner, s.Repo, err)
	}

	assets := make([]Asset, 0, len(release.Assets))
	for _, ra := range release.Assets {
		u, err := url.Parse(ra.GetBrowserDownloadURL())
		if err != nil {
			continue
		}
		assets = append(assets, Asset{
			Name: ra.GetName(),
			URL:  u,
			Size: int64(ra.GetSize()),
		})
	}
	if len(assets) == 0 {
		return nil, errors.Wrapf(errors.ErrNoMatchingAsset, "release %s/%s@%s has no assets",
			s.Owner, s.Repo, release.GetTagName())
	}
	return assets, nil
}
