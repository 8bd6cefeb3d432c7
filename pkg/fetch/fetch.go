// Package fetch retrieves descriptor payloads and version files over HTTP.
//
// [Client] is the production implementation of both [Fetcher] (small payloads
// returned in memory, optionally cached) and [Downloader] (files streamed to
// disk). All requests made through one Client share a concurrency limit, a
// retry policy and a response cache:
//
//	c := fetch.New(fetch.Options{
//	    Concurrency: 6,
//	    Cache:       fileCache,
//	    CacheTTL:    time.Hour,
//	})
//	data, err := c.Fetch(ctx, "https://example.com/quickmods/jei.json", nil)
//
// Transport errors, 429 and 5xx responses are retried with exponential
// backoff; 404 maps to NOT_FOUND and other statuses to FETCH_FAILED.
// file:// locators are read from the local filesystem.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/quickmod/pkg/buildinfo"
	"github.com/matzehuels/quickmod/pkg/cache"
	qerrors "github.com/matzehuels/quickmod/pkg/errors"
	"github.com/matzehuels/quickmod/pkg/httputil"
	"github.com/matzehuels/quickmod/pkg/observability"
)

// DefaultConcurrency is the number of requests a Client runs at once when
// Options.Concurrency is not set.
const DefaultConcurrency = 6

const cacheKeyType = "descriptor"

// ProgressFunc receives transfer progress. total is -1 when the size is unknown.
type ProgressFunc func(current, total int64)

// Fetcher retrieves one payload per URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, onProgress ProgressFunc) ([]byte, error)
}

// Downloader streams one payload per URL to a file.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string, opts DownloadOptions) (int64, error)
}

// Options configures a [Client].
type Options struct {
	HTTPClient  *http.Client // nil: httputil.NewClient(Timeout)
	Timeout     time.Duration
	Concurrency int64
	Retry       httputil.Policy // zero value: httputil.DefaultPolicy
	Cache       cache.Cache     // nil: no caching
	Keyer       cache.Keyer     // nil: cache.NewDefaultKeyer()
	CacheTTL    time.Duration
	UserAgent   string
	Logger      *log.Logger
}

// Client fetches and downloads over HTTP.
type Client struct {
	http      *http.Client
	sem       *semaphore.Weighted
	policy    httputil.Policy
	cache     cache.Cache
	keyer     cache.Keyer
	ttl       time.Duration
	userAgent string
	logger    *log.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	c := &Client{
		http:      opts.HTTPClient,
		policy:    opts.Retry,
		cache:     opts.Cache,
		keyer:     opts.Keyer,
		ttl:       opts.CacheTTL,
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}
	if c.http == nil {
		c.http = httputil.NewClient(opts.Timeout)
	}
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	c.sem = semaphore.NewWeighted(n)
	if c.policy.Attempts == 0 {
		c.policy = httputil.DefaultPolicy
	}
	if c.cache == nil {
		c.cache = cache.NewNullCache()
	}
	if c.keyer == nil {
		c.keyer = cache.NewDefaultKeyer()
	}
	if c.userAgent == "" {
		c.userAgent = buildinfo.UserAgent()
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

type refreshKey struct{}

// WithRefresh returns a context under which Fetch bypasses cached responses.
// Fresh responses are still written to the cache.
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

// Refresh reports whether ctx was created with [WithRefresh].
func Refresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Fetch returns the payload at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string, onProgress ProgressFunc) ([]byte, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "file" {
		return readLocal(u, onProgress)
	}

	key := c.keyer.HTTPKey(cacheKeyType, rawURL)
	if !Refresh(ctx) {
		if data, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn("cache read failed", "url", rawURL, "error", err)
		} else if ok {
			observability.Cache().OnCacheHit(ctx, cacheKeyType)
			c.logger.Debug("cache hit", "url", rawURL)
			report(onProgress, int64(len(data)), int64(len(data)))
			return data, nil
		}
		observability.Cache().OnCacheMiss(ctx, cacheKeyType)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, canceled(rawURL, err)
	}
	defer c.sem.Release(1)

	var data []byte
	err = httputil.Retry(ctx, c.policy, func() error {
		body, size, err := c.get(ctx, u)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(&progressReader{r: body, total: size, fn: onProgress})
		if err != nil {
			return httputil.Retryable(qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "read %s", rawURL))
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}

	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "url", rawURL, "error", err)
	} else {
		observability.Cache().OnCacheSet(ctx, cacheKeyType, len(data))
	}
	return data, nil
}

// get issues one GET request and returns the body of a successful response.
func (c *Client) get(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, qerrors.Wrap(qerrors.ErrCodeInvalidInput, err, "build request for %s", u)
	}
	req.Header.Set("User-Agent", c.userAgent)

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, httputil.Retryable(qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "error downloading %s", u))
	}
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))
	c.logger.Debug("fetched", "url", u.String(), "status", resp.StatusCode)

	if err := httputil.CheckStatus(u.String(), resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	if err := qerrors.ValidateLocator(rawURL); err != nil {
		return nil, err
	}
	return url.Parse(rawURL)
}

func readLocal(u *url.URL, onProgress ProgressFunc) ([]byte, error) {
	data, err := os.ReadFile(u.Path)
	if os.IsNotExist(err) {
		return nil, qerrors.Wrap(qerrors.ErrCodeNotFound, err, "%s", u)
	}
	if err != nil {
		return nil, qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "read %s", u)
	}
	report(onProgress, int64(len(data)), int64(len(data)))
	return data, nil
}

// classify makes sure every error leaving the package is coded and names the URL.
func classify(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return canceled(rawURL, ctx.Err())
	}
	var retry *httputil.RetryableError
	if errors.As(err, &retry) {
		err = retry.Err
	}
	if qerrors.GetCode(err) != "" {
		return err
	}
	return qerrors.Wrap(qerrors.ErrCodeFetchFailed, err, "error downloading %s", rawURL)
}

func canceled(rawURL string, err error) error {
	return qerrors.Wrap(qerrors.ErrCodeCanceled, err, "fetch of %s canceled", rawURL)
}

func report(fn ProgressFunc, current, total int64) {
	if fn != nil {
		fn(current, total)
	}
}

// progressReader reports the running byte count after every read.
type progressReader struct {
	r     io.Reader
	n     int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		report(p.fn, p.n, p.total)
	}
	return n, err
}

var (
	_ Fetcher    = (*Client)(nil)
	_ Downloader = (*Client)(nil)
)
