package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prettymaps-go/prettymaps/internal/logging"
)

// DefaultUserAgent identifies the tool to public OSM services, which require one.
const DefaultUserAgent = "prettymaps-go/1.0 (+https://github.com/prettymaps-go/prettymaps)"

const maxErrorBody = 512

// Options configures the HTTP side of the Overpass and Nominatim clients.
type Options struct {
	// BaseURL is the service endpoint.
	BaseURL string
	// UserAgent is sent with every request.
	UserAgent string
	// Timeout bounds each request; zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Cache stores successful responses when set.
	Cache *Cache
	// Logger receives request diagnostics.
	Logger *slog.Logger
}

type transport struct {
	base      string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	cache     *Cache
	logger    *slog.Logger
}

func newTransport(opts Options, defaultBase string) (*transport, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBase
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", base, err)
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &transport{
		base:      base,
		userAgent: ua,
		timeout:   opts.Timeout,
		client:    client,
		cache:     opts.Cache,
		logger:    logging.OrDiscard(opts.Logger),
	}, nil
}

// acceptFunc checks a response body. Bodies it rejects are neither returned nor cached.
type acceptFunc func(data []byte) error

// get issues a GET to base+path with query parameters.
func (t *transport) get(ctx context.Context, path string, query url.Values, accept acceptFunc) ([]byte, error) {
	u := t.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return t.do(ctx, http.MethodGet, u, nil, accept)
}

// postForm issues a form-encoded POST to base+path.
func (t *transport) postForm(ctx context.Context, path string, form url.Values, accept acceptFunc) ([]byte, error) {
	return t.do(ctx, http.MethodPost, t.base+path, []byte(form.Encode()), accept)
}

func (t *transport) do(ctx context.Context, method, u string, body []byte, accept acceptFunc) ([]byte, error) {
	key := Key(method, u, body)
	if t.cache != nil {
		data, ok, err := t.cache.Get(ctx, key)
		switch {
		case err != nil:
			t.logger.Warn("cache read failed", "error", err)
		case ok && accept != nil && accept(data) != nil:
			t.logger.Debug("cached response rejected, refetching", "url", u)
		case ok:
			t.logger.Debug("cache hit", "url", u)
			return data, nil
		}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", u, err)
	}
	t.logger.Debug("http request", "method", method, "url", u, "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(start).Round(time.Millisecond))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{URL: u, Status: resp.StatusCode, Body: snippet}
	}
	if accept != nil {
		if err := accept(data); err != nil {
			return nil, err
		}
	}

	if t.cache != nil {
		if err := t.cache.Put(ctx, key, u, data); err != nil {
			t.logger.Warn("cache write failed", "error", err)
		}
	}
	return data, nil
}
