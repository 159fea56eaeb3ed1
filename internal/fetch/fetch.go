// Package fetch is the shared HTTP transport every source driver fetches
// through: per-source rate limiting, retry with backoff, cache
// short-circuit, and bulk-file download/decompress.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"geneingest/pkg/apperror"
	"geneingest/pkg/cache"
	"geneingest/pkg/ratelimit"
	"geneingest/pkg/telemetry"
)

const (
	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// Profile is the per-source subset of config.SourceConfig the engine needs:
// the rate-limit/retry key and the default TTL for cache writes.
type Profile struct {
	Source     string
	MaxRetries int
	DefaultTTL time.Duration
}

// Options configures one GET/POST call's cache behavior.
type Options struct {
	// CacheKey, if non-empty, enables the cache short-circuit and
	// write-back under namespace Source.
	CacheKey string
	// TTL overrides Profile.DefaultTTL for this call's cache write.
	TTL time.Duration
	// Validate guards the cache write: a response that fails Validate is
	// returned to the caller but never cached. Nil means always valid.
	Validate func([]byte) bool
}

// Engine is the shared Fetch Engine instance, one per process, injected into
// every driver.
type Engine struct {
	http    *http.Client
	cache   cache.Cache
	limiter ratelimit.Limiter
}

// New builds an Engine. httpClient defaults to http.DefaultClient; cache and
// limiter may be nil to disable the cache short-circuit / rate limiting
// respectively (used by drivers with no network calls).
func New(httpClient *http.Client, c cache.Cache, limiter ratelimit.Limiter) *Engine {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Engine{http: httpClient, cache: c, limiter: limiter}
}

// GET performs a rate-limited, retried, optionally cached HTTP GET.
func (e *Engine) GET(ctx context.Context, profile Profile, url string, opts Options) ([]byte, error) {
	return e.do(ctx, profile, http.MethodGet, url, nil, opts)
}

// POST performs a rate-limited, retried, optionally cached HTTP POST.
func (e *Engine) POST(ctx context.Context, profile Profile, url string, body []byte, opts Options) ([]byte, error) {
	return e.do(ctx, profile, http.MethodPost, url, body, opts)
}

func (e *Engine) do(ctx context.Context, profile Profile, method, url string, body []byte, opts Options) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "fetch.Engine.do")
	defer span.End()

	if opts.CacheKey != "" && e.cache != nil {
		key := cacheKey(profile.Source, opts.CacheKey)
		if data, err := e.cache.Get(ctx, key); err == nil {
			span.SetAttributes(telemetry.FetchAttributes(method, 0, true)...)
			return data, nil
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, profile.Source); err != nil {
			return nil, fmt.Errorf("fetch: %s: rate limiter: %w", profile.Source, err)
		}
	}

	maxRetries := profile.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffBase
	bo.MaxInterval = backoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 1

	attempts := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		return e.attempt(ctx, method, url, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxRetries+1)))
	if err != nil {
		span.SetAttributes(telemetry.FetchAttributes(method, attempts-1, false)...)
		return nil, fmt.Errorf("%w: %s %s: %v", apperror.ErrSourceUnavailable, method, url, err)
	}
	span.SetAttributes(telemetry.FetchAttributes(method, attempts-1, false)...)

	if opts.CacheKey != "" && e.cache != nil && (opts.Validate == nil || opts.Validate(data)) {
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = profile.DefaultTTL
		}
		key := cacheKey(profile.Source, opts.CacheKey)
		_ = e.cache.Set(ctx, key, data, ttl)
	}

	return data, nil
}

func (e *Engine) attempt(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err // network error: retryable
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if d, ok := retryAfter(resp); ok {
			return nil, backoff.RetryAfter(int(d.Seconds()))
		}
		return nil, fmt.Errorf("%d rate limited", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%d server error", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("%d client error", resp.StatusCode))
	}

	return data, nil
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func cacheKey(namespace, key string) string {
	return namespace + ":" + key
}
