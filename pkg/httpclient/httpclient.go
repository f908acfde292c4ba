// Package httpclient builds the shared HTTP client from configuration. The
// core does not implement its own transport; it only parameterizes the
// standard client with proxy, timeout, user agent and custom headers.
package httpclient

import (
	"net/http"
	"net/url"

	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/errors"
)

// headerTransport injects the configured user agent and custom headers into
// every outgoing request.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}

// New builds an *http.Client from the given settings.
func New(s config.HTTPSettings) (*http.Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if s.Proxy != "" {
		proxyURL, err := url.Parse(s.Proxy)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrConfigValidation, "invalid proxy URL %s: %v", s.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Timeout: s.Timeout,
		Transport: &headerTransport{
			base:      transport,
			userAgent: s.UserAgent,
			headers:   s.Headers,
		},
	}, nil
}
