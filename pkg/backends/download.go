package backends

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// ErrChecksumMismatch is returned when a download does not match its declared sha256.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Fetcher downloads files over HTTP with retries on transient failures.
type Fetcher struct {
	client          *http.Client
	maxTries        uint
	initialInterval time.Duration
	logger          zerolog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithRetry sets the attempt limit and the first retry delay.
func WithRetry(maxTries uint, initialInterval time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.maxTries = maxTries
		f.initialInterval = initialInterval
	}
}

// NewFetcher creates a new fetcher.
func NewFetcher(logger zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:          &http.Client{Timeout: 10 * time.Minute},
		maxTries:        4,
		initialInterval: 500 * time.Millisecond,
		logger:          logger.With().Str("component", "fetcher").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchFile downloads url into a temporary file in dir and returns its path
// and sha256. The caller owns the file.
func (f *Fetcher) FetchFile(ctx context.Context, url, dir string) (path, digest string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialInterval

	attempt := 0
	operation := func() (string, error) {
		attempt++
		path, err := f.fetchOnce(ctx, url, dir)
		if err != nil {
			f.logger.Debug().Err(err).Str("url", url).Int("attempt", attempt).Msg("Download attempt failed")
		}
		return path, err
	}

	path, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxTries),
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to download %s: %w", url, err)
	}

	digest, err = fileSHA256(path)
	if err != nil {
		_ = os.Remove(path)
		return "", "", err
	}
	return path, digest, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "converge")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	tmp, err := os.CreateTemp(dir, ".converge-download-*")
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", backoff.Permanent(err)
	}

	return tmp.Name(), nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DownloadBackend installs binary-download units: fetch, verify, chmod, rename.
type DownloadBackend struct {
	fetcher *Fetcher
	prober  prober
	logger  zerolog.Logger
}

// NewDownloadBackend creates a new binary download backend.
func NewDownloadBackend(fetcher *Fetcher, runner CommandRunner, logger zerolog.Logger) *DownloadBackend {
	return &DownloadBackend{
		fetcher: fetcher,
		prober:  prober{runner: runner},
		logger:  logger.With().Str("component", "download-backend").Logger(),
	}
}

// destination returns where the binary goes.
func destination(unit engine.Unit) (string, error) {
	if unit.Destination == "" {
		return "", fmt.Errorf("unit %s has no destination", unit.ID)
	}
	return engine.ExpandHome(unit.Destination), nil
}

// Probe implements engine.DetectionBackend. The destination file is the
// default detection command.
func (b *DownloadBackend) Probe(ctx context.Context, unit engine.Unit, _ *engine.State) (engine.ProbeResult, error) {
	dest, err := destination(unit)
	if err != nil && unit.Detect.Command == "" && unit.Detect.Path == "" {
		return engine.ProbeResult{}, err
	}
	return b.prober.probe(ctx, unit, dest)
}

// Execute implements engine.InstallBackend. Install and upgrade both replace
// the destination atomically.
func (b *DownloadBackend) Execute(ctx context.Context, unit engine.Unit, action engine.Action, _ *engine.State) (engine.ExecResult, error) {
	dest, err := destination(unit)
	if err != nil {
		return engine.ExecResult{}, err
	}
	if unit.Source == "" {
		return engine.ExecResult{}, fmt.Errorf("unit %s has no source URL", unit.ID)
	}

	tmp, digest, err := b.fetcher.FetchFile(ctx, unit.Source, filepath.Dir(dest))
	if err != nil {
		return engine.ExecResult{}, err
	}
	defer os.Remove(tmp)

	if unit.Checksum != "" && !strings.EqualFold(unit.Checksum, digest) {
		return engine.ExecResult{}, fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, unit.Source, unit.Checksum, digest)
	}

	if err := os.Chmod(tmp, 0o755); err != nil {
		return engine.ExecResult{}, fmt.Errorf("failed to chmod %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return engine.ExecResult{}, fmt.Errorf("failed to move binary into %s: %w", dest, err)
	}

	b.logger.Info().
		Str("unit", unit.ID).
		Str("action", string(action)).
		Str("destination", dest).
		Str("sha256", digest).
		Msg("Binary installed")

	return engine.ExecResult{
		Output: fmt.Sprintf("%s -> %s (sha256 %s)", unit.Source, dest, digest),
	}, nil
}
