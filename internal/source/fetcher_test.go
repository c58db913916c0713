package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/lexruler/internal/cache"
	"github.com/ppiankov/lexruler/internal/model"
	"github.com/ppiankov/lexruler/internal/util"
)

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := fetchSleepFunc
	fetchSleepFunc = func(d time.Duration) { waits = append(waits, d) }
	t.Cleanup(func() { fetchSleepFunc = orig })
	return &waits
}

func testFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return NewFetcher(opts)
}

func TestFetchWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected User-Agent %q", got)
		}
		if got := r.Header.Get("Accept"); got != acceptJSON {
			t.Errorf("unexpected Accept %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"records":[]}`)
	}))
	defer server.Close()

	resp, err := testFetcher(FetcherOptions{}).FetchWithRetry(context.Background(), server.URL, acceptJSON)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(resp.Body) != `{"records":[]}` {
		t.Errorf("Unexpected body: %s", resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Errorf("Unexpected content type: %s", resp.ContentType)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	waits := noSleep(t)

	resp, err := testFetcher(FetcherOptions{}).FetchWithRetry(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if string(resp.Body) != "[]" {
		t.Errorf("Unexpected body: %s", resp.Body)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
	if len(*waits) != 2 || (*waits)[1] != 2*(*waits)[0] {
		t.Errorf("Expected exponential backoff, got %v", *waits)
	}
}

func TestFetchWithRetry_PermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	noSleep(t)

	_, err := testFetcher(FetcherOptions{}).FetchWithRetry(context.Background(), server.URL, "")
	if err == nil {
		t.Fatal("Expected error for 404, got nil")
	}

	var fe *UpstreamFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected UpstreamFetchError, got %T", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", fe.StatusCode)
	}
	if IsRetryable(err) {
		t.Error("404 must not be retryable")
	}
	// 404 is not retryable, so should fail immediately
	if attempts.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	noSleep(t)

	_, err := testFetcher(FetcherOptions{MaxRetries: 4}).FetchWithRetry(context.Background(), server.URL, "")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts.Load() != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts.Load())
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestFetchWithRetry_HonorsRetryAfter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	waits := noSleep(t)

	if _, err := testFetcher(FetcherOptions{}).FetchWithRetry(context.Background(), server.URL, ""); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Errorf("Expected a single 7s wait, got %v", *waits)
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	_, err := testFetcher(FetcherOptions{MaxBodyBytes: 10}).Fetch(context.Background(), server.URL, "")
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("Expected ErrBodyTooLarge, got %v", err)
	}

	resp, err := testFetcher(FetcherOptions{MaxBodyBytes: 100}).Fetch(context.Background(), server.URL, "")
	if err != nil {
		t.Fatalf("Body exactly at the limit should pass: %v", err)
	}
	if len(resp.Body) != 100 {
		t.Errorf("Expected 100 bytes, got %d", len(resp.Body))
	}
}

func TestFetch_UsesCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, `[{"LegalName":"Acme"}]`)
	}))
	defer server.Close()

	f := testFetcher(FetcherOptions{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	ctx := context.Background()

	first, err := f.Fetch(ctx, server.URL+"/?a=1", "")
	if err != nil {
		t.Fatal(err)
	}
	f.Store(server.URL+"/?a=1", first.Body)

	second, err := f.Fetch(ctx, server.URL+"/?a=1", "")
	if err != nil {
		t.Fatal(err)
	}

	if hits.Load() != 1 {
		t.Errorf("Expected 1 upstream hit, got %d", hits.Load())
	}
	if first.FromCache || !second.FromCache {
		t.Errorf("Expected only second response from cache: %v %v", first.FromCache, second.FromCache)
	}
	if string(second.Body) != string(first.Body) {
		t.Error("Cached body differs")
	}

	// Different query is a different key
	if _, err := f.Fetch(ctx, server.URL+"/?a=2", ""); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 upstream hits, got %d", hits.Load())
	}
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := testFetcher(FetcherOptions{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	_, _ = f.Fetch(context.Background(), server.URL, "")
	_, _ = f.Fetch(context.Background(), server.URL, "")

	if hits.Load() != 2 {
		t.Errorf("Expected failed responses to skip the cache, got %d hits", hits.Load())
	}
}

func TestFetch_DoesNotStoreUntilDecoded(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "{}")
	}))
	defer server.Close()

	f := testFetcher(FetcherOptions{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	_, _ = f.Fetch(context.Background(), server.URL, "")
	_, _ = f.Fetch(context.Background(), server.URL, "")

	if hits.Load() != 2 {
		t.Errorf("Expected unstored bodies to go upstream each time, got %d hits", hits.Load())
	}
}

func TestRESTSource_MalformedBodyIsNotCached(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = fmt.Fprint(w, "<html>maintenance</html>")
			return
		}
		_, _ = fmt.Fprint(w, `{"records":[{"LegalName":"Acme N.V."}]}`)
	}))
	defer server.Close()

	f := testFetcher(FetcherOptions{Cache: cache.NewMemoryCache(time.Minute, time.Minute)})
	src := NewRESTSource(model.SourceConfig{Name: "leilex", URL: server.URL, RecordsPath: "records"}, f)
	ctx := context.Background()

	if _, err := src.Fetch(ctx); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("Expected ErrMalformedBody on first fetch, got %v", err)
	}

	batch, err := src.Fetch(ctx)
	if err != nil {
		t.Fatalf("Expected second fetch to reach upstream and succeed, got %v", err)
	}
	if len(batch.Records) != 1 || batch.FromCache {
		t.Errorf("Unexpected second batch: %+v", batch)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 upstream hits, got %d", hits.Load())
	}

	// The good body is now cached
	third, err := src.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !third.FromCache || hits.Load() != 2 {
		t.Errorf("Expected cached third fetch, fromCache=%v hits=%d", third.FromCache, hits.Load())
	}
}

func TestSPARQLSource_CachedBadBodyIsEvicted(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, `{"head":{"vars":["label"]},"results":{"bindings":[]}}`)
	}))
	defer server.Close()

	c := cache.NewMemoryCache(time.Minute, time.Minute)
	f := testFetcher(FetcherOptions{Cache: c})
	src, err := NewSPARQLSource(model.SourceConfig{Name: "animals", URL: server.URL, Query: "SELECT ?label WHERE {}"}, f)
	if err != nil {
		t.Fatal(err)
	}

	// A body cached before validation existed
	if err := c.Set(cache.CacheKey(src.URL()), []byte("truncated {"), time.Minute); err != nil {
		t.Fatal(err)
	}

	_, err = src.Fetch(context.Background())
	var fe *UpstreamFetchError
	if !errors.As(err, &fe) || !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("Expected malformed UpstreamFetchError, got %v", err)
	}
	if fe.URL != src.URL() {
		t.Errorf("Expected full request URL in error, got %q", fe.URL)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected cached body to be used first, got %d hits", hits.Load())
	}

	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("Expected fetch after eviction to succeed, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 upstream hit after eviction, got %d", hits.Load())
	}
}

func TestFetch_RobotsDisallowed(t *testing.T) {
	var dataHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /sparql\n")
			return
		}
		dataHits.Add(1)
		_, _ = fmt.Fprint(w, "{}")
	}))
	defer server.Close()

	f := testFetcher(FetcherOptions{Robots: util.NewRobotsChecker("test-agent", 5*time.Second)})
	_, err := f.FetchWithRetry(context.Background(), server.URL+"/sparql?query=x", "")

	if !errors.Is(err, ErrDisallowedByRobots) {
		t.Fatalf("Expected ErrDisallowedByRobots, got %v", err)
	}
	if dataHits.Load() != 0 {
		t.Error("Disallowed URL must not be requested")
	}
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	noSleep(t)

	_, err := testFetcher(FetcherOptions{MaxRetries: 2}).FetchWithRetry(context.Background(), addr, "")
	var fe *UpstreamFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Expected UpstreamFetchError, got %v", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("Expected no status for network error, got %d", fe.StatusCode)
	}
	if !fe.Retryable() {
		t.Error("Network errors should be retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := map[string]time.Duration{
		"":       0,
		"3":      3 * time.Second,
		"-1":     0,
		"soon":   0,
		"100000": maxRetryAfter,
	}
	for in, want := range tests {
		if got := parseRetryAfter(in); got != want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", in, got, want)
		}
	}
}
