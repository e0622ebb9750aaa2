package httputil

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/psresget/pkg/cache"
	"github.com/matzehuels/psresget/pkg/observability"
)

// DefaultTimeout bounds a single request, including reading the body.
const DefaultTimeout = 60 * time.Second

var (
	// ErrNotFound is returned when the server answers 404.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork is returned for transport failures and unexpected status codes.
	ErrNetwork = errors.New("network error")
)

// Options configures [NewClient].
type Options struct {
	// Cache stores responses for [Client.Cached]. Nil disables caching.
	Cache cache.Cache

	// TTL is the lifetime of cached responses. Zero means no expiry.
	TTL time.Duration

	// Headers are applied to every request.
	Headers map[string]string

	// Username and Password enable HTTP basic auth when Username is set.
	Username string
	Password string

	// HTTPClient overrides the default client (timeout [DefaultTimeout]).
	HTTPClient *http.Client
}

// Client provides shared HTTP functionality for feed adapters.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	ttl     time.Duration
	headers map[string]string
	user    string
	pass    string
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:    hc,
		cache:   c,
		ttl:     opts.TTL,
		headers: opts.Headers,
		user:    opts.Username,
		pass:    opts.Password,
	}
}

// Cached retrieves v from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored JSON-encoded.
// Cache failures are ignored: the cache only ever saves a request.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if json.Unmarshal(data, v) == nil {
				return nil
			}
		}
	}
	if err := fetch(); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// GetXML performs an HTTP GET request and XML-decodes the response into v.
func (c *Client) GetXML(ctx context.Context, rawURL string, v any) error {
	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := xml.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// GetBytes performs an HTTP GET request and returns the response body.
func (c *Client) GetBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// Download streams rawURL into dest. The body is written to a temporary
// sibling file and renamed into place, so dest is either absent or complete.
func (c *Client) Download(ctx context.Context, rawURL, dest string) error {
	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: download %s: %v", ErrNetwork, rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	host, path := hostPath(rawURL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	return resp.Body, nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, code)
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func hostPath(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	return u.Host, u.Path
}
