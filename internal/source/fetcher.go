package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/lexruler/internal/cache"
	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/util"
	"github.com/ppiankov/lexruler/internal/worker"
)

const (
	defaultMaxRetries = 3
	baseBackoff       = 500 * time.Millisecond
	maxRetryAfter     = 30 * time.Second
)

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	InsecureTLS  bool
	HTTPProxy    string
	HTTPSProxy   string
	NoProxy      string
	MaxRetries   int

	Cache    cache.Cache // nil disables caching
	CacheTTL time.Duration

	Limiter *worker.Limiter     // nil disables rate limiting
	Robots  *util.RobotsChecker // nil skips robots.txt checks

	Logger *slog.Logger
}

// Fetcher performs upstream GET requests for the sources
type Fetcher struct {
	httpClient *http.Client
	opts       FetcherOptions
	logger     *slog.Logger
}

// Response is a successfully fetched upstream body
type Response struct {
	Body        []byte
	StatusCode  int
	ContentType string
	FinalURL    string
	FromCache   bool
	FetchedAt   time.Time
}

// NewFetcher creates a new Fetcher with the given options
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = model.DefaultConfig().HTTP.MaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
	}
	if opts.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		opts:   opts,
		logger: logger,
	}
}

// NewFetcherFromConfig wires cache, rate limiter and robots checker from cfg
func NewFetcherFromConfig(cfg *model.Config, logger *slog.Logger) *Fetcher {
	opts := FetcherOptions{
		Timeout:      cfg.HTTP.Timeout,
		UserAgent:    cfg.HTTP.UserAgent,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		InsecureTLS:  cfg.HTTP.InsecureTLS,
		HTTPProxy:    cfg.HTTP.HTTPProxy,
		HTTPSProxy:   cfg.HTTP.HTTPSProxy,
		NoProxy:      cfg.HTTP.NoProxy,
		MaxRetries:   cfg.HTTP.MaxRetries,
		Logger:       logger,
	}

	if cfg.Cache.Enabled {
		opts.Cache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		opts.CacheTTL = cfg.Cache.DiskTTL
	}
	if cfg.RateLimiting.RequestsPerSecond > 0 {
		opts.Limiter = worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	}

	f := NewFetcher(opts)
	if cfg.HTTP.RespectRobots {
		f.opts.Robots = util.NewRobotsCheckerWithClient(cfg.HTTP.UserAgent, f.httpClient)
	}
	return f
}

// Fetch performs a single GET of rawURL. accept is sent as the Accept header.
// A cached body is returned when present; fresh bodies are not cached here,
// callers Store them once they have decoded successfully.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, accept string) (*Response, error) {
	key := cache.CacheKey(rawURL)
	if f.opts.Cache != nil {
		if body, ok := f.opts.Cache.Get(key); ok {
			f.logger.Debug("Upstream cache hit", slog.String("url", rawURL))
			return &Response{
				Body:       body,
				StatusCode: http.StatusOK,
				FinalURL:   rawURL,
				FromCache:  true,
				FetchedAt:  time.Now().UTC(),
			}, nil
		}
	}

	var crawlDelay time.Duration
	if f.opts.Robots != nil {
		allowed, delay, err := f.opts.Robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, &UpstreamFetchError{URL: rawURL, Err: err}
		}
		if !allowed {
			return nil, &UpstreamFetchError{URL: rawURL, Err: ErrDisallowedByRobots}
		}
		crawlDelay = delay
	}

	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
			return nil, &UpstreamFetchError{URL: rawURL, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &UpstreamFetchError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamFetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &statusError{
			UpstreamFetchError: UpstreamFetchError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("unexpected status: %s", resp.Status),
			},
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	// Read one byte past the limit to tell "exactly at limit" from "too large"
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, &UpstreamFetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, &UpstreamFetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.opts.MaxBodyBytes),
		}
	}

	return &Response{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// Store caches body for rawURL. It is a no-op without a cache.
func (f *Fetcher) Store(rawURL string, body []byte) {
	if f.opts.Cache == nil {
		return
	}
	if err := f.opts.Cache.Set(cache.CacheKey(rawURL), body, f.opts.CacheTTL); err != nil {
		f.logger.Warn("Failed to cache upstream response", slog.String("url", rawURL), slog.String("error", err.Error()))
	}
}

// Evict drops the cached body for rawURL, so the next Fetch goes upstream
func (f *Fetcher) Evict(rawURL string) {
	if f.opts.Cache == nil {
		return
	}
	if err := f.opts.Cache.Delete(cache.CacheKey(rawURL)); err != nil {
		f.logger.Warn("Failed to evict cached response", slog.String("url", rawURL), slog.String("error", err.Error()))
	}
}

// settle caches a body that decoded, and evicts a cached one that did not
func (f *Fetcher) settle(rawURL string, resp *Response, decodeErr error) {
	switch {
	case decodeErr == nil && !resp.FromCache:
		f.Store(rawURL, resp.Body)
	case decodeErr != nil && resp.FromCache:
		f.Evict(rawURL)
	}
}

// FetchWithRetry retries transient failures (network errors, 429, 5xx) with
// exponential backoff, honoring Retry-After when the server sends one
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, accept string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		resp, err := f.Fetch(ctx, rawURL, accept)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == f.opts.MaxRetries-1 {
			break
		}

		wait := baseBackoff << attempt
		var se *statusError
		if errors.As(err, &se) && se.retryAfter > 0 {
			wait = se.retryAfter
		}

		f.logger.Debug("Retrying upstream fetch",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
		fetchSleepFunc(wait)
	}

	return nil, unwrapStatus(lastErr)
}

// statusError carries the Retry-After hint alongside the fetch error
type statusError struct {
	UpstreamFetchError
	retryAfter time.Duration
}

func (e *statusError) Unwrap() error {
	return &e.UpstreamFetchError
}

// unwrapStatus strips the internal retry wrapper before returning to callers
func unwrapStatus(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		fe := se.UpstreamFetchError
		return &fe
	}
	return err
}

// parseRetryAfter reads a delay-seconds Retry-After value, capped
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
