package appctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geneingest/pkg/config"
)

func TestHGNCBulkURL_FindsConfiguredEntry(t *testing.T) {
	entries := []config.SourceConfig{
		{Name: "panelapp", BulkURL: ""},
		{Name: "hgnc", BulkURL: "https://example.invalid/hgnc.json"},
	}
	require.Equal(t, "https://example.invalid/hgnc.json", hgncBulkURL(entries))
}

func TestHGNCBulkURL_EmptyWhenNotConfigured(t *testing.T) {
	require.Equal(t, "", hgncBulkURL(nil))
}

func TestBulkRefreshSources_OnlyBulkCapableNonRetired(t *testing.T) {
	entries := []config.SourceConfig{
		{Name: "panelapp", SupportsBulk: false},
		{Name: "hgnc", SupportsBulk: true},
		{Name: "gnomad", SupportsBulk: true},
		{Name: "retired-bulk", SupportsBulk: true, Retired: true},
	}
	require.ElementsMatch(t, []string{"hgnc", "gnomad"}, bulkRefreshSources(entries))
}

func TestRateLimitConfig_MapsFields(t *testing.T) {
	c := rateLimitConfig(config.RateLimitConfig{
		Strategy: "token_bucket", Backend: "memory", BurstSize: 10,
		CleanupInterval: time.Minute, RedisAddr: "localhost:6379",
	})
	require.Equal(t, "token_bucket", c.Strategy)
	require.Equal(t, "memory", c.Backend)
	require.Equal(t, 10, c.BurstSize)
}

func TestAuditConfig_MapsFields(t *testing.T) {
	c := auditConfig(config.AuditConfig{
		Enabled: true, Backend: "stdout", BufferSize: 100, FlushPeriod: 5 * time.Second,
	})
	require.True(t, c.Enabled)
	require.Equal(t, "stdout", c.Backend)
	require.Equal(t, 100, c.BufferSize)
}
