package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache implements Cache over the cache_entries table, serving as
// a persistent L2 tier: one row per (namespace, key), expiry checked at
// read time.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache creates a PostgresCache backed by an existing pool. The
// cache_entries table is created by the schema migrations, not here.
func NewPostgresCache(pool *pgxpool.Pool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

func splitKey(key string) (namespace, localKey string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "other", key
}

func (c *PostgresCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, _, err := c.GetWithTTL(ctx, key)
	return v, err
}

func (c *PostgresCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	ns, k := splitKey(key)
	var value []byte
	var expiresAt time.Time
	err := c.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE namespace = $1 AND key = $2`,
		ns, k,
	).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil, 0, ErrKeyNotFound
	}
	return value, ttl, nil
}

func (c *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ns, k := splitKey(key)
	expiresAt := time.Now().Add(ttl)
	_, err := c.pool.Exec(ctx, `
		INSERT INTO cache_entries (namespace, key, value, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, ns, k, value, expiresAt)
	return err
}

func (c *PostgresCache) Delete(ctx context.Context, key string) error {
	ns, k := splitKey(key)
	_, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`, ns, k)
	return err
}

func (c *PostgresCache) Exists(ctx context.Context, key string) (bool, error) {
	_, _, err := c.GetWithTTL(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *PostgresCache) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, err := c.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func (c *PostgresCache) MSet(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	for key, value := range entries {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (c *PostgresCache) MDelete(ctx context.Context, keys []string) (int64, error) {
	var total int64
	for _, key := range keys {
		ns, k := splitKey(key)
		tag, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE namespace = $1 AND key = $2`, ns, k)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (c *PostgresCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	ns, like := patternToSQL(pattern)
	rows, err := c.pool.Query(ctx, `
		SELECT namespace, key FROM cache_entries
		WHERE ($1 = '' OR namespace = $1) AND key LIKE $2 AND expires_at > now()
	`, ns, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var namespace, key string
		if err := rows.Scan(&namespace, &key); err != nil {
			return nil, err
		}
		keys = append(keys, namespace+":"+key)
	}
	return keys, rows.Err()
}

// patternToSQL splits a "namespace:key*" glob pattern into a fixed namespace
// (empty means any) and a SQL LIKE expression over the key portion.
func patternToSQL(pattern string) (namespace, like string) {
	ns, k := splitKey(pattern)
	if ns == "other" && pattern == k {
		ns = ""
	}
	for i := 0; i < len(k); i++ {
		if k[i] == '*' {
			return ns, k[:i] + "%"
		}
	}
	return ns, k
}

func (c *PostgresCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	ns, like := patternToSQL(pattern)
	tag, err := c.pool.Exec(ctx, `
		DELETE FROM cache_entries WHERE ($1 = '' OR namespace = $1) AND key LIKE $2
	`, ns, like)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListNamespaces returns the set of namespaces currently represented in the
// table, queried live so it can never go stale.
func (c *PostgresCache) ListNamespaces(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT DISTINCT namespace FROM cache_entries WHERE expires_at > now()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, rows.Err()
}

func (c *PostgresCache) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: BackendPostgres, KeysByPrefix: map[string]int64{}}
	rows, err := c.pool.Query(ctx, `
		SELECT namespace, count(*) FROM cache_entries WHERE expires_at > now() GROUP BY namespace
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ns string
		var n int64
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, err
		}
		stats.KeysByPrefix[ns] = n
		stats.TotalKeys += n
	}
	return stats, rows.Err()
}

func (c *PostgresCache) Clear(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `TRUNCATE cache_entries`)
	return err
}

// Close is a no-op: PostgresCache does not own the pool it was given.
func (c *PostgresCache) Close() error { return nil }

// Sweep removes expired rows, run periodically by a background sweeper.
func (c *PostgresCache) Sweep(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
