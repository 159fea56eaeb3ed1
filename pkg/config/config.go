// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	App          AppConfig          `koanf:"app"`
	Log          LogConfig          `koanf:"log"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Tracing      TracingConfig      `koanf:"tracing"`
	Database     DatabaseConfig     `koanf:"database"`
	Cache        CacheConfig        `koanf:"cache"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	Audit        AuditConfig        `koanf:"audit"`
	Retry        RetryConfig        `koanf:"retry"`
	Fetch        FetchConfig        `koanf:"fetch"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Progress     ProgressConfig     `koanf:"progress"`
	Scoring      ScoringConfig      `koanf:"scoring"`
	Sources      SourcesConfig      `koanf:"sources"`
	Panel        PanelConfig        `koanf:"panel"`
}

// PanelConfig declares the gene panel every run drives the pipeline across.
// Entries may be HGNC IDs, approved symbols, or aliases; each is resolved
// through the Gene Normalizer before any driver sees it. Operationally this
// list is loaded from a curated panel file maintained outside this repo;
// DefaultPanel is a representative bootstrap set for local development and
// tests.
type PanelConfig struct {
	Symbols []string `koanf:"symbols"`
}

// AppConfig holds general process-wide settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	Output     string `koanf:"output"` // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int  `koanf:"max_size"`    // MB
	MaxBackups int  `koanf:"max_backups"`
	MaxAge     int  `koanf:"max_age"` // days
	Compress   bool `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN returns the libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// CacheConfig configures the two-tier cache: L1 is always an in-process
// LRU; Driver selects the L2 backend.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // postgres, redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // L1 bound

	SweepInterval time.Duration `koanf:"sweep_interval"` // L2 background sweeper
	BulkCacheRoot string        `koanf:"bulk_cache_root"` // on-disk bulk-file cache dir
}

// Address returns the host:port pair for a network cache backend.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures the Fetch Engine's per-source rate limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"` // xtime, memory, redis
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the orchestrator's audit trail.
type AuditConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Backend        string        `koanf:"backend"` // stdout, file
	FilePath       string        `koanf:"file_path"`
	BufferSize     int           `koanf:"buffer_size"`
	FlushPeriod    time.Duration `koanf:"flush_period"`
	ExcludeMethods []string      `koanf:"exclude_methods"`
}

// RetryConfig holds retry settings. Only MaxAttempts is read (as the retry
// count of the normalizer's HGNC bulk-download profile); the Fetch Engine's
// backoff base and cap are constants in internal/fetch, and InitialBackoff,
// MaxBackoff and BackoffMultiplier are not read.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"` // base
	MaxBackoff        time.Duration `koanf:"max_backoff"`     // cap
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// FetchConfig configures HTTP transport and bulk-download behavior shared
// by every driver through the Fetch Engine.
type FetchConfig struct {
	HTTPTimeout       time.Duration `koanf:"http_timeout"`
	BulkChunkBytes    int64         `koanf:"bulk_chunk_bytes"` // streaming read chunk size, capped at 1 MiB
	BulkDefaultTTLHrs int           `koanf:"bulk_default_ttl_hrs"`
	NCBIAPIKeyEnv     string        `koanf:"ncbi_api_key_env"` // env var name, not the key itself
}

// OrchestratorConfig configures run scheduling and concurrency.
type OrchestratorConfig struct {
	ParallelSources    int           `koanf:"parallel_sources"`     // sources fetched concurrently, default 4
	MinWorkersPerRun   int           `koanf:"min_workers_per_run"`  // floor for per-gene worker pools
	ConnPoolOverhead   int           `koanf:"conn_pool_overhead"`   // co-sizing check margin
	DriverStallWarning time.Duration `koanf:"driver_stall_warning"` // warn if a driver makes no progress this long
	WeeklyRefreshCron  string        `koanf:"weekly_refresh_cron"`  // cron expression for bulk refresh
	ErrorRateThreshold float64       `koanf:"error_rate_threshold"` // default 0.5
	ErrorRateFloor     int           `koanf:"error_rate_floor"`     // default 10
	MaxRetryConflicts  int           `koanf:"max_retry_conflicts"`  // default 3
}

// ProgressConfig configures the Progress Tracker & Event Bus throttling.
type ProgressConfig struct {
	PersistInterval    time.Duration `koanf:"persist_interval"`     // max persist rate, e.g. 1/5s
	PublishInterval    time.Duration `koanf:"publish_interval"`     // max publish rate, e.g. 1/1s
	SubscriberQueueLen int           `koanf:"subscriber_queue_len"` // default 64
}

// EvidenceTierBand is one row of the evidence_tier threshold table.
type EvidenceTierBand struct {
	MinPercentage float64 `koanf:"min_percentage"`
	Tier          string  `koanf:"tier"`
	Group         string  `koanf:"group"`
}

// ScoringConfig configures the Scoring Engine, including the configurable
// evidence_tier bands.
type ScoringConfig struct {
	Bands []EvidenceTierBand `koanf:"bands"`
}

// SourceCategory is one of the declared source kinds.
type SourceCategory string

const (
	CategoryExternalAPI    SourceCategory = "external-api"
	CategoryBulkFile       SourceCategory = "bulk-file"
	CategoryScrapedPanel   SourceCategory = "scraped-panel"
	CategoryInternalProc   SourceCategory = "internal-process"
)

// ScoringTrack selects which scoring algorithm applies to a source.
type ScoringTrack string

const (
	TrackA ScoringTrack = "A" // count-based percentile
	TrackB ScoringTrack = "B" // direct classification mapping
	TrackC ScoringTrack = "C" // weighted then percentile
	TrackNone ScoringTrack = "" // not in the scoring set (e.g. annotation-only sources)
)

// SourceConfig is one entry in the static source registry table.
type SourceConfig struct {
	Name              string         `koanf:"name"`
	DisplayName       string         `koanf:"display_name"`
	Category          SourceCategory `koanf:"category"`
	RateLimitPerSec   float64        `koanf:"rate_limit_per_sec"`
	MaxRetries        int            `koanf:"max_retries"`
	DefaultTTL        time.Duration  `koanf:"default_ttl"`
	BulkURL           string         `koanf:"bulk_url"`
	APIKeyEnv         string         `koanf:"api_key_env"`
	SupportsBulk      bool           `koanf:"supports_bulk"`
	SupportsPerGene   bool           `koanf:"supports_per_gene"`
	ClassificationBased bool         `koanf:"classification_based"`
	CountBased        bool           `koanf:"count_based"`
	Retired           bool           `koanf:"retired"`

	Track          ScoringTrack `koanf:"track"`
	CountPath      string       `koanf:"count_path"` // gjson path(s) used to extract source_count
	IncludeSexChromosomes bool  `koanf:"include_sex_chromosomes"`
}

// SourcesConfig is the full source registry table.
type SourcesConfig struct {
	Entries []SourceConfig `koanf:"entries"`
}

// Validate checks invariants across the whole configuration, including the
// connection-pool/worker co-sizing check.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Orchestrator.ParallelSources <= 0 {
		c.Orchestrator.ParallelSources = 4
	}

	maxWorkers := 0
	for _, s := range c.Sources.Entries {
		if s.Retired || !s.SupportsPerGene {
			continue
		}
		w := int(s.RateLimitPerSec)
		if w < c.Orchestrator.MinWorkersPerRun {
			w = c.Orchestrator.MinWorkersPerRun
		}
		maxWorkers += w
	}
	needed := maxWorkers + c.Orchestrator.ConnPoolOverhead
	if c.Database.MaxOpenConns > 0 && c.Database.MaxOpenConns < needed {
		errs = append(errs, fmt.Sprintf(
			"database.max_open_conns (%d) must be >= sum of per-source worker pools + overhead (%d)",
			c.Database.MaxOpenConns, needed,
		))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the process is running in a dev environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the process is running in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}

// DefaultSourceRegistry is the built-in source table used when no config
// file overrides sources.entries. gnomAD/GTEx/UniProt/ClinVar are
// annotation-only (TrackNone); HGNC is the normalizer's own bulk source and
// never scored.
func DefaultSourceRegistry() []SourceConfig {
	return []SourceConfig{
		{
			Name: "panelapp", DisplayName: "PanelApp", Category: CategoryExternalAPI,
			RateLimitPerSec: 5, MaxRetries: 5, DefaultTTL: 24 * time.Hour,
			SupportsPerGene: true, CountBased: true, Track: TrackA, CountPath: "panels.#",
		},
		{
			Name: "hpo", DisplayName: "Human Phenotype Ontology", Category: CategoryExternalAPI,
			RateLimitPerSec: 5, MaxRetries: 5, DefaultTTL: 24 * time.Hour,
			SupportsPerGene: true, CountBased: true, Track: TrackA, CountPath: "hpo_terms.#+diseases.#",
		},
		{
			Name: "pubtator", DisplayName: "PubTator", Category: CategoryExternalAPI,
			RateLimitPerSec: 3, MaxRetries: 5, DefaultTTL: 24 * time.Hour,
			SupportsPerGene: true, CountBased: true, Track: TrackA, CountPath: "publications.#",
		},
		{
			Name: "literature", DisplayName: "Curated Literature Review", Category: CategoryInternalProc,
			RateLimitPerSec: 10, MaxRetries: 3, DefaultTTL: 7 * 24 * time.Hour,
			SupportsPerGene: true, CountBased: true, Track: TrackA, CountPath: "citations.#",
		},
		{
			Name: "clingen", DisplayName: "ClinGen Gene-Disease Validity", Category: CategoryExternalAPI,
			RateLimitPerSec: 3, MaxRetries: 5, DefaultTTL: 7 * 24 * time.Hour,
			SupportsPerGene: true, ClassificationBased: true, Track: TrackB,
		},
		{
			Name: "gencc", DisplayName: "Gene Curation Coalition", Category: CategoryBulkFile,
			MaxRetries: 5, DefaultTTL: 7 * 24 * time.Hour,
			SupportsBulk: true, ClassificationBased: true, Track: TrackC,
		},
		{
			Name: "hgnc", DisplayName: "HGNC", Category: CategoryBulkFile,
			MaxRetries: 5, DefaultTTL: 7 * 24 * time.Hour,
			SupportsBulk: true, Track: TrackNone,
		},
		{
			Name: "gnomad", DisplayName: "gnomAD Constraint", Category: CategoryBulkFile,
			MaxRetries: 3, DefaultTTL: 30 * 24 * time.Hour,
			SupportsBulk: true, Track: TrackNone, IncludeSexChromosomes: true,
		},
		{
			Name: "gtex", DisplayName: "GTEx Expression", Category: CategoryBulkFile,
			MaxRetries: 3, DefaultTTL: 30 * 24 * time.Hour,
			SupportsBulk: true, Track: TrackNone,
		},
		{
			Name: "uniprot", DisplayName: "UniProt Features", Category: CategoryExternalAPI,
			RateLimitPerSec: 3, MaxRetries: 5, DefaultTTL: 30 * 24 * time.Hour,
			SupportsPerGene: true, Track: TrackNone,
		},
		{
			Name: "clinvar", DisplayName: "ClinVar Variant Summary", Category: CategoryBulkFile,
			MaxRetries: 3, DefaultTTL: 7 * 24 * time.Hour,
			SupportsBulk: true, Track: TrackNone,
		},
		{
			Name: "gene_normalization", DisplayName: "Gene Normalization", Category: CategoryInternalProc,
			Track: TrackNone,
		},
		{
			Name: "evidence_aggregation", DisplayName: "Evidence Aggregation", Category: CategoryInternalProc,
			Track: TrackNone,
		},
	}
}

// DefaultPanel is a representative kidney-disease gene panel used when
// Panel.Symbols is not overridden by config. It is intentionally a seed,
// not the full curated panel.
func DefaultPanel() []string {
	return []string{
		"PKD1", "PKD2", "PKHD1", "UMOD", "COL4A3", "COL4A4", "COL4A5",
		"NPHS1", "NPHS2", "WT1", "PAX2", "HNF1B", "CEP290", "NPHP1",
		"TTC21B", "INF2", "ACTN4", "TRPC6", "LMX1B", "CUBN",
	}
}

// DefaultEvidenceTierBands are the built-in evidence_tier thresholds, used
// when Scoring.Bands is not overridden by config.
func DefaultEvidenceTierBands() []EvidenceTierBand {
	return []EvidenceTierBand{
		{MinPercentage: 75, Tier: "comprehensive_support", Group: "well_supported"},
		{MinPercentage: 50, Tier: "multi_source_support", Group: "well_supported"},
		{MinPercentage: 30, Tier: "established_support", Group: "emerging"},
		{MinPercentage: 10, Tier: "preliminary_evidence", Group: "emerging"},
		{MinPercentage: 0, Tier: "minimal_evidence", Group: "emerging"},
	}
}
