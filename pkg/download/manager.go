package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v80/github"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
)

// Manager resolves sources and performs verified transfers. Transfers stream
// to a temporary file in the destination directory and are renamed into place
// only after the full body (and checksum, when known) checks out, so a
// committed file is always complete.
type Manager struct {
	client     *http.Client
	github     *github.Client
	maxRetries uint64
}

// NewManager constructs a download manager. The HTTP client carries the
// configured timeout, proxy and header policy; the GitHub client shares it.
func NewManager(client *http.Client, gh *github.Client, maxRetries int) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if gh == nil {
		gh = github.NewClient(client)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Manager{client: client, github: gh, maxRetries: uint64(maxRetries)}
}

// Resolve lists the candidate assets of a source.
func (m *Manager) Resolve(ctx context.Context, src Source) ([]Asset, error) {
	return src.resolve(ctx, m)
}

// Fetch downloads one asset into dir and returns the committed path. Retries
// use exponential backoff; client errors and checksum mismatches are not
// retried. A failed fetch leaves no partial file at the destination.
func (m *Manager) Fetch(ctx context.Context, asset Asset, dir string, opts Options) (FetchResult, error) {
	if dir == "" || !filepath.IsAbs(dir) {
		return FetchResult{}, errors.Wrapf(errors.ErrInvalidPath, "download dir must be absolute: %s", dir)
	}
	if err := fsutil.EnsureDir(dir, fsutil.DirModeDefault); err != nil {
		return FetchResult{}, errors.Wrap(err, "creating download dir")
	}

	destPath := filepath.Join(dir, destFilename(asset))
	if !opts.ForceOverwrite && opts.SkipExisting {
		if st, err := os.Stat(destPath); err == nil && st.Size() > 0 {
			logger.Debug("destination exists, skipping", logger.Fields{"path": destPath})
			return FetchResult{Path: destPath, Skipped: true}, nil
		}
	}

	want := normalizeHex(opts.Checksum)
	if want == "" {
		want = normalizeHex(asset.Digest)
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := m.transfer(ctx, asset, destPath, want, opts.Progress, attempt)
		if err == nil {
			return nil
		}
		if isPermanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Warn("transfer failed, retrying", logger.Fields{"asset": asset.Name, "error": err.Error()})
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return FetchResult{}, err
	}

	if opts.Extract {
		extractDir := opts.ExtractDir
		if extractDir == "" {
			extractDir = strings.TrimSuffix(destPath, filepath.Ext(destPath))
		}
		if err := extractArchive(ctx, destPath, extractDir); err != nil {
			// The download itself committed; extraction failure does not
			// undo it.
			return FetchResult{Path: destPath}, errors.Wrap(err, "extracting archive")
		}
	}
	return FetchResult{Path: destPath}, nil
}

// FetchAll downloads assets concurrently with a bounded worker pool. The
// returned paths are indexed like the input; the first failure cancels the
// remaining transfers.
func (m *Manager) FetchAll(ctx context.Context, assets []Asset, opts BatchOptions) ([]string, error) {
	if opts.Dir == "" || !filepath.IsAbs(opts.Dir) {
		return nil, errors.Wrapf(errors.ErrInvalidPath, "download dir must be absolute: %s", opts.Dir)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = max(2, runtime.NumCPU()/2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	paths := make([]string, len(assets))
	var firstErr error
	var mu sync.Mutex

	tasks := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range tasks {
				res, err := m.Fetch(ctx, assets[idx], opts.Dir, Options{Progress: opts.Progress})
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
				} else {
					paths[idx] = res.Path
				}
				mu.Unlock()
			}
		}()
	}
	for i := range assets {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return paths, nil
}

// transfer performs one attempt: stream to a temp file next to the
// destination, hashing incrementally, then rename into place.
func (m *Manager) transfer(ctx context.Context, asset Asset, destPath, wantChecksum string, progress ProgressFunc, attempt int) error {
	body, size, err := m.openBody(ctx, asset)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "dl-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	rep := newReporter(progress)
	hasher := sha256.New()
	counter := &countingWriter{rep: rep, asset: asset.Name, attempt: attempt, total: size}
	written, err := io.Copy(io.MultiWriter(tmp, hasher, counter), body)
	if err != nil {
		cleanup()
		rep.close(Progress{Asset: asset.Name, Attempt: attempt, Transferred: counter.transferred, Total: size})
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	rep.close(Progress{Asset: asset.Name, Attempt: attempt, Transferred: written, Total: size})

	if wantChecksum != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != wantChecksum {
			cleanup()
			return errors.Wrapf(errors.ErrChecksumMismatch, "%s: want %s, got %s", asset.Name, wantChecksum, got)
		}
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "setting permissions")
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "committing download")
	}
	return nil
}

func (m *Manager) openBody(ctx context.Context, asset Asset) (io.ReadCloser, int64, error) {
	if asset.open != nil {
		rc, err := asset.open(ctx)
		if err != nil {
			return nil, 0, errors.Wrap(errors.ErrNetwork, err.Error())
		}
		return rc, asset.Size, nil
	}
	if asset.URL == nil {
		return nil, 0, errors.Wrapf(errors.ErrInvalidPath, "asset %s has no URL", asset.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL.String(), http.NoBody)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrNetwork, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, &httpStatusError{url: asset.URL.String(), status: resp.StatusCode}
	}
	size := resp.ContentLength
	if size < 0 {
		size = asset.Size
	}
	return resp.Body, size, nil
}

// httpStatusError carries the status code so retry logic can distinguish
// client errors from transient server failures.
type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.url, e.status, errors.ErrHTTPStatus)
}

func (e *httpStatusError) Unwrap() error { return errors.ErrHTTPStatus }

// isPermanent reports whether retrying cannot help: the server rejected the
// request outright or the content failed verification.
func isPermanent(err error) bool {
	if stderrors.Is(err, errors.ErrChecksumMismatch) || stderrors.Is(err, errors.ErrInvalidPath) {
		return true
	}
	var statusErr *httpStatusError
	if stderrors.As(err, &statusErr) {
		return statusErr.status >= 400 && statusErr.status < 500
	}
	return false
}

func destFilename(asset Asset) string {
	if asset.Name != "" {
		return filepath.Base(asset.Name)
	}
	h := sha256.Sum256([]byte(asset.URL.String()))
	return hex.EncodeToString(h[:])
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
