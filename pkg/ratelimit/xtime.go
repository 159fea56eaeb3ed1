package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// XTimeLimiter implements Limiter as one golang.org/x/time/rate.Limiter per
// key, with burst equal to cfg.BurstSize when positive and otherwise to the
// per-second rate. This is the Fetch Engine's default backend
// (rate_limit.backend=xtime): one token bucket per source name.
type XTimeLimiter struct {
	cfg *Config

	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time

	closed bool
	done   chan struct{}
}

// NewXTimeLimiter creates a limiter keyed per source name. cfg.Requests is
// interpreted as requests/sec; cfg.BurstSize overrides the default burst
// (equal to requests/sec) when positive.
func NewXTimeLimiter(cfg *Config) *XTimeLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &XTimeLimiter{
		cfg:      cfg,
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		done:     make(chan struct{}),
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go l.cleanupLoop(interval)

	return l
}

func (l *XTimeLimiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeen[key] = time.Now()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	perSecond := float64(l.cfg.Requests)
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := l.cfg.BurstSize
	if burst <= 0 {
		burst = l.cfg.Requests
	}
	if burst <= 0 {
		burst = 1
	}

	b := rate.NewLimiter(rate.Limit(perSecond), burst)
	l.buckets[key] = b
	return b
}

func (l *XTimeLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.closed {
		return false, ErrLimiterClosed
	}
	return l.bucketFor(key).Allow(), nil
}

func (l *XTimeLimiter) AllowN(_ context.Context, key string, n int) (bool, error) {
	if l.closed {
		return false, ErrLimiterClosed
	}
	return l.bucketFor(key).AllowN(time.Now(), n), nil
}

// Wait blocks until a token is available or ctx is cancelled, honoring
// cooperative cancellation as required by the Fetch Engine's rate-limiter
// token acquisition suspension point.
func (l *XTimeLimiter) Wait(ctx context.Context, key string) error {
	if l.closed {
		return ErrLimiterClosed
	}
	return l.bucketFor(key).Wait(ctx)
}

// WaitFor is a convenience for reserving a Retry-After-derived delay: it
// waits exactly d before returning, unless ctx is cancelled first.
func (l *XTimeLimiter) WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *XTimeLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	delete(l.lastSeen, key)
	return nil
}

func (l *XTimeLimiter) GetInfo(_ context.Context, key string) (*LimitInfo, error) {
	b := l.bucketFor(key)
	tokens := int(b.Tokens())
	if tokens < 0 {
		tokens = 0
	}
	return &LimitInfo{
		Limit:     l.cfg.Requests,
		Remaining: tokens,
		ResetAt:   time.Now().Add(time.Second),
	}, nil
}

func (l *XTimeLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return nil
}

func (l *XTimeLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.cleanup(interval * 4)
		}
	}
}

func (l *XTimeLimiter) cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for key, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastSeen, key)
		}
	}
}
