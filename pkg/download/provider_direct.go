package download

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/glorpus-work/porter/pkg/errors"
)

func (s DirectSource) resolve(_ context.Context, _ *Manager) ([]Asset, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "invalid download URL %q: %v", s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "unsupported URL scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = u.Host
	}
	name = strings.TrimSpace(name)

	return []Asset{{Name: name, URL: u}}, nil
}
