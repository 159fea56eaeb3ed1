// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "GENEINGEST_"
	configEnvVar = "CONFIG_PATH"
)

// Loader загружает конфигурацию из разных источников
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader создаёт новый загрузчик конфигурации
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/geneingest/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption - опция для конфигурации загрузчика
type LoaderOption func(*Loader)

// WithConfigPaths устанавливает пути поиска конфигурации
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix устанавливает префикс переменных окружения
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load загружает конфигурацию с приоритетом:
// 1. Defaults (самый низкий)
// 2. Config file (yaml)
// 3. Environment variables (самый высокий)
func (l *Loader) Load() (*Config, error) {
	// 1. Загружаем значения по умолчанию
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Загружаем из файла конфигурации
	if err := l.loadConfigFile(); err != nil {
		// Файл не обязателен, логируем warning
		fmt.Printf("Warning: %v\n", err)
	}

	// 3. Загружаем из переменных окружения (перезаписывают файл)
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	// 4. Распаковываем в структуру
	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The source registry and scoring bands are structured lists that a
	// flat confmap default can't express cleanly; fall back to the
	// code-level defaults when the config file didn't supply any.
	if len(cfg.Sources.Entries) == 0 {
		cfg.Sources.Entries = DefaultSourceRegistry()
	}
	if len(cfg.Scoring.Bands) == 0 {
		cfg.Scoring.Bands = DefaultEvidenceTierBands()
	}

	// 5. Валидируем
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults загружает значения по умолчанию
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "geneingest",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "geneingest",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "geneingest",
		"tracing.sample_rate":  0.1,

		// Database
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "geneingest",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     50,
		"database.max_idle_conns":     10,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,
		"database.migrations_path":    "migrations",
		"database.auto_migrate":       true,

		// Cache (two-tier: L1 always in-process memory, driver selects L2)
		"cache.enabled":         true,
		"cache.driver":          "postgres",
		"cache.host":            "localhost",
		"cache.port":            6379,
		"cache.db":              0,
		"cache.default_ttl":     24 * time.Hour,
		"cache.max_entries":     50000,
		"cache.sweep_interval":  10 * time.Minute,
		"cache.bulk_cache_root": "/var/cache/geneingest/bulk",

		// Rate limit (Fetch Engine default backend is the x/time/rate bucket)
		"rate_limit.enabled":          true,
		"rate_limit.requests":         5,
		"rate_limit.window":           time.Second,
		"rate_limit.strategy":         "token_bucket",
		"rate_limit.backend":          "xtime",
		"rate_limit.burst_size":       5,
		"rate_limit.cleanup_interval": 10 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "file",
		"audit.file_path":    "/var/log/geneingest/audit.log",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Retry (Fetch Engine backoff policy)
		"retry.max_attempts":       5,
		"retry.initial_backoff":    500 * time.Millisecond,
		"retry.max_backoff":        2 * time.Minute,
		"retry.backoff_multiplier": 2.0,

		// Fetch
		"fetch.http_timeout":        60 * time.Second,
		"fetch.bulk_chunk_bytes":    1 << 20, // 1 MiB
		"fetch.bulk_default_ttl_hrs": 168,     // 7 days
		"fetch.ncbi_api_key_env":    "GENEINGEST_NCBI_API_KEY",

		// Orchestrator
		"orchestrator.parallel_sources":     4,
		"orchestrator.min_workers_per_run":  2,
		"orchestrator.conn_pool_overhead":   10,
		"orchestrator.driver_stall_warning": 30 * time.Second,
		"orchestrator.weekly_refresh_cron":  "0 3 * * 0", // Sunday 03:00
		"orchestrator.error_rate_threshold": 0.5,
		"orchestrator.error_rate_floor":     10,
		"orchestrator.max_retry_conflicts":  3,

		// Progress tracker / event bus
		"progress.persist_interval":     5 * time.Second,
		"progress.publish_interval":     1 * time.Second,
		"progress.subscriber_queue_len": 64,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile загружает конфигурацию из файла
func (l *Loader) loadConfigFile() error {
	// Сначала проверяем переменную окружения
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	// Ищем файл по списку путей
	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv загружает конфигурацию из переменных окружения
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// GENEINGEST_DATABASE_HOST -> database.host
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad загружает конфигурацию или паникует
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load - удобная функция для загрузки с дефолтными настройками
func Load() (*Config, error) {
	return NewLoader().Load()
}
