package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzip"
)

// BulkChunkBytes bounds a single streamed-to-disk read, matching the
// configured default of 1 MiB.
const BulkChunkBytes = 1 << 20

// DownloadBulk checks cacheDir for a file matching url whose mtime is within
// ttl; on a miss it streams the download to a temp file in chunks and
// renames it atomically into place. Gzipped sources are decompressed to a
// sibling path on first use; the decompressed path is what callers receive.
func (e *Engine) DownloadBulk(ctx context.Context, profile Profile, url, cacheDir string, ttl time.Duration) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: bulk: mkdir %s: %w", cacheDir, err)
	}

	path := bulkPath(cacheDir, profile.Source, url)

	if info, err := os.Stat(path); err == nil {
		if ttl > 0 && time.Since(info.ModTime()) < ttl {
			return finalBulkPath(path)
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, profile.Source); err != nil {
			return "", fmt.Errorf("fetch: bulk: %s: rate limiter: %w", profile.Source, err)
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

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.streamDownload(ctx, url, path)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxRetries+1)))
	if err != nil {
		return "", fmt.Errorf("fetch: bulk: %s %s: %w", profile.Source, url, err)
	}

	return finalBulkPath(path)
}

func (e *Engine) streamDownload(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if d, ok := retryAfter(resp); ok {
			return backoff.RetryAfter(int(d.Seconds()))
		}
		return fmt.Errorf("%d rate limited", resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%d server error", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("%d client error", resp.StatusCode))
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := make([]byte, BulkChunkBytes)
	if _, err := io.CopyBuffer(tmp, resp.Body, buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, destPath)
}

// bulkPath returns <cacheDir>/<source>_<hash12(url)>.<ext>.
func bulkPath(cacheDir, source, url string) string {
	sum := sha256.Sum256([]byte(url))
	hash := hex.EncodeToString(sum[:])[:12]
	return filepath.Join(cacheDir, fmt.Sprintf("%s_%s%s", source, hash, bulkExt(url)))
}

func bulkExt(url string) string {
	base := filepath.Base(url)
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	ext := filepath.Ext(base)
	if ext == "" {
		return ".dat"
	}
	return ext
}

// finalBulkPath decompresses a .gz-suffixed path to a sibling file on first
// use and returns the path callers should read from.
func finalBulkPath(path string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, nil
	}

	decompressed := strings.TrimSuffix(path, ".gz")
	if info, err := os.Stat(decompressed); err == nil {
		srcInfo, serr := os.Stat(path)
		if serr == nil && !info.ModTime().Before(srcInfo.ModTime()) {
			return decompressed, nil
		}
	}

	if err := decompressGzip(path, decompressed); err != nil {
		return "", fmt.Errorf("fetch: bulk: decompress %s: %w", path, err)
	}
	return decompressed, nil
}

func decompressGzip(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer gz.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, destPath)
}
