package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestEngine_DownloadBulk_StreamsAndCaches(t *testing.T) {
	var calls int32
	body := []byte("gene,symbol\n1,PKD1\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	engine := New(srv.Client(), nil, nil)
	cacheDir := t.TempDir()

	path, err := engine.DownloadBulk(context.Background(), Profile{Source: "hgnc"}, srv.URL+"/bulk.csv", cacheDir, time.Hour)
	if err != nil {
		t.Fatalf("DownloadBulk() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("downloaded content = %q, want %q", got, body)
	}

	// Second call within TTL should hit the on-disk cache, not the server.
	path2, err := engine.DownloadBulk(context.Background(), Profile{Source: "hgnc"}, srv.URL+"/bulk.csv", cacheDir, time.Hour)
	if err != nil {
		t.Fatalf("second DownloadBulk() error = %v", err)
	}
	if path2 != path {
		t.Errorf("second path = %s, want %s", path2, path)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server called %d times, want 1 (fresh file should short-circuit)", calls)
	}
}

func TestEngine_DownloadBulk_ExpiredTTLRefetches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("data"))
	}))
	t.Cleanup(srv.Close)

	engine := New(srv.Client(), nil, nil)
	cacheDir := t.TempDir()

	if _, err := engine.DownloadBulk(context.Background(), Profile{Source: "gnomad"}, srv.URL+"/bulk.tsv", cacheDir, -time.Hour); err != nil {
		t.Fatalf("first DownloadBulk() error = %v", err)
	}
	if _, err := engine.DownloadBulk(context.Background(), Profile{Source: "gnomad"}, srv.URL+"/bulk.tsv", cacheDir, -time.Hour); err != nil {
		t.Fatalf("second DownloadBulk() error = %v", err)
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("server called %d times, want 2 (negative TTL always expired)", calls)
	}
}

func TestEngine_DownloadBulk_DecompressesGzip(t *testing.T) {
	plain := []byte("hgnc_id,symbol\nHGNC:1,A1BG\n")

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write(plain)
	w.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gz.Bytes())
	}))
	t.Cleanup(srv.Close)

	engine := New(srv.Client(), nil, nil)
	cacheDir := t.TempDir()

	path, err := engine.DownloadBulk(context.Background(), Profile{Source: "hgnc"}, srv.URL+"/hgnc.json.gz", cacheDir, time.Hour)
	if err != nil {
		t.Fatalf("DownloadBulk() error = %v", err)
	}
	if filepath.Ext(path) == ".gz" {
		t.Errorf("path = %s, want decompressed sibling path", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decompressed content = %q, want %q", got, plain)
	}
}

func TestBulkPath_IsStableForSameURL(t *testing.T) {
	p1 := bulkPath("/tmp/cache", "hgnc", "https://example.com/hgnc.json")
	p2 := bulkPath("/tmp/cache", "hgnc", "https://example.com/hgnc.json")
	if p1 != p2 {
		t.Errorf("bulkPath should be deterministic: %s != %s", p1, p2)
	}

	p3 := bulkPath("/tmp/cache", "hgnc", "https://example.com/other.json")
	if p1 == p3 {
		t.Error("bulkPath should differ for different URLs")
	}
}
