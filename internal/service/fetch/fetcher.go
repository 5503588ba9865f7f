package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/mc-provisioner/internal/clock"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
	"github.com/oshokin/mc-provisioner/internal/logger"
)

// DefaultTimeout bounds a single transfer when no timeout is configured.
const DefaultTimeout = 30 * time.Minute

var (
	// ErrTransfer marks every failure to retrieve artifact content.
	ErrTransfer = errors.New("transfer failed")
	// ErrUnsupportedScheme is returned for sources that are not http or https URLs.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
	// errBadHTTPStatus is returned when the server answers with anything but 200 OK.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// Fetcher retrieves the full content of an artifact.
type Fetcher interface {
	Fetch(ctx context.Context, spec artifact.Spec) ([]byte, error)
}

// HTTPFetcher downloads artifacts with plain GET requests.
type HTTPFetcher struct {
	// client performs the requests.
	client *http.Client
	// clock measures transfer duration.
	clock clock.Clock
	// timeout bounds a single transfer.
	timeout time.Duration
	// userAgent is sent with every request when not empty.
	userAgent string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithClock sets the clock used to measure transfers.
func WithClock(c clock.Clock) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithTimeout sets the per-transfer timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = strings.TrimSpace(userAgent)
	}
}

// NewHTTPFetcher creates a fetcher with the provided options.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  http.DefaultClient,
		clock:   clock.Real(),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads the artifact and returns its complete content.
func (f *HTTPFetcher) Fetch(ctx context.Context, spec artifact.Spec) ([]byte, error) {
	source, err := url.Parse(spec.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse source %q: %w", ErrTransfer, spec.Source, err)
	}

	if source.Scheme != "http" && source.Scheme != "https" {
		return nil, fmt.Errorf("%w: %w: %q", ErrTransfer, ErrUnsupportedScheme, source.Scheme)
	}

	requestCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, source.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransfer, err)
	}

	if f.userAgent != "" {
		request.Header.Set("User-Agent", f.userAgent)
	}

	logger.InfoKV(ctx, "Downloading artifact", "artifact", spec.Key(), "source", spec.Source)

	started := f.clock.Now()

	response, err := f.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransfer, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s, %s: %w", ErrTransfer, spec.Source, response.Status, errBadHTTPStatus)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransfer, err)
	}

	logger.InfoKV(ctx, "Downloaded artifact",
		"artifact", spec.Key(),
		"size", humanize.Bytes(uint64(len(data))),
		"took", f.clock.Now().Sub(started))

	return data, nil
}
