package cache

import (
	"context"
	"sync"
	"time"
)

// NamespaceLister is implemented by L2 backends that can answer
// list_namespaces directly from their store rather than by scanning keys.
type NamespaceLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// Sweeper is implemented by L2 backends with a proactive expiry sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Tiered implements a two-tier cache: L1 is an in-process bounded LRU, L2
// is a persistent key/value store. Reads check L1 first, promoting on an
// L2 hit; writes go to both tiers. Per-namespace locks serialize writes to
// avoid torn writes, while L1 reads stay lock-free (delegated to
// MemoryCache's own locking, which is already per-instance).
type Tiered struct {
	l1 Cache
	l2 Cache

	nsMu    sync.Mutex
	nsLocks map[string]*sync.Mutex
}

// NewTiered builds a Tiered cache from an already-constructed L1 and L2.
func NewTiered(l1, l2 Cache) *Tiered {
	return &Tiered{l1: l1, l2: l2, nsLocks: make(map[string]*sync.Mutex)}
}

func (t *Tiered) lockFor(namespace string) *sync.Mutex {
	t.nsMu.Lock()
	defer t.nsMu.Unlock()
	m, ok := t.nsLocks[namespace]
	if !ok {
		m = &sync.Mutex{}
		t.nsLocks[namespace] = m
	}
	return m
}

func nsKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get looks up a key within a namespace, checking L1 before L2.
func (t *Tiered) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	fullKey := nsKey(namespace, key)

	if v, err := t.l1.Get(ctx, fullKey); err == nil {
		return v, true, nil
	} else if err != ErrKeyNotFound {
		return nil, false, err
	}

	v, ttl, err := t.l2.GetWithTTL(ctx, fullKey)
	if err == ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Promote to L1 on hit.
	_ = t.l1.Set(ctx, fullKey, v, ttl)
	return v, true, nil
}

// Set writes a value to both tiers under the given namespace and TTL.
func (t *Tiered) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	mu := t.lockFor(namespace)
	mu.Lock()
	defer mu.Unlock()

	fullKey := nsKey(namespace, key)
	if err := t.l2.Set(ctx, fullKey, value, ttl); err != nil {
		return err
	}
	return t.l1.Set(ctx, fullKey, value, ttl)
}

// Delete removes a key from both tiers, reporting whether it existed.
func (t *Tiered) Delete(ctx context.Context, namespace, key string) (bool, error) {
	mu := t.lockFor(namespace)
	mu.Lock()
	defer mu.Unlock()

	fullKey := nsKey(namespace, key)
	existed, err := t.l2.Exists(ctx, fullKey)
	if err != nil {
		return false, err
	}
	if err := t.l2.Delete(ctx, fullKey); err != nil {
		return false, err
	}
	_ = t.l1.Delete(ctx, fullKey)
	return existed, nil
}

// Invalidate removes every key in a namespace and returns the count removed.
func (t *Tiered) Invalidate(ctx context.Context, namespace string) (int, error) {
	mu := t.lockFor(namespace)
	mu.Lock()
	defer mu.Unlock()

	pattern := namespace + ":*"
	n, err := t.l2.DeleteByPattern(ctx, pattern)
	if err != nil {
		return 0, err
	}
	// L1 invalidation is best-effort: a reader may observe a stale L1 value
	// for at most one L1 miss after the L2 deletion.
	_, _ = t.l1.DeleteByPattern(ctx, pattern)
	return int(n), nil
}

// ListNamespaces returns every namespace with at least one live key in L2,
// sourced dynamically so it can never drift into a stale hardcoded list.
func (t *Tiered) ListNamespaces(ctx context.Context) ([]string, error) {
	if lister, ok := t.l2.(NamespaceLister); ok {
		return lister.ListNamespaces(ctx)
	}

	keys, err := t.l2.Keys(ctx, "*")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, k := range keys {
		ns, _ := splitKey(k)
		if _, ok := seen[ns]; !ok {
			seen[ns] = struct{}{}
			out = append(out, ns)
		}
	}
	return out, nil
}

// Stats returns cache statistics, optionally scoped to one namespace. An
// empty namespace returns L2-wide stats.
func (t *Tiered) Stats(ctx context.Context, namespace string) (*Stats, error) {
	stats, err := t.l2.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		return stats, nil
	}
	scoped := &Stats{
		Backend:      stats.Backend,
		TotalKeys:    stats.KeysByPrefix[namespace],
		KeysByPrefix: map[string]int64{namespace: stats.KeysByPrefix[namespace]},
	}
	return scoped, nil
}

// Sweep trims expired L2 entries; callers run this on a ticker every few
// minutes.
func (t *Tiered) Sweep(ctx context.Context) (int64, error) {
	if sweeper, ok := t.l2.(Sweeper); ok {
		return sweeper.Sweep(ctx)
	}
	return 0, nil
}

// Close releases both tiers.
func (t *Tiered) Close() error {
	err1 := t.l1.Close()
	err2 := t.l2.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
