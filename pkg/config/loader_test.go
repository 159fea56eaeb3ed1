package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "geneingest" {
		t.Errorf("expected app name 'geneingest', got %s", cfg.App.Name)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("expected metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Orchestrator.ParallelSources != 4 {
		t.Errorf("expected orchestrator.parallel_sources 4, got %d", cfg.Orchestrator.ParallelSources)
	}
	if len(cfg.Sources.Entries) == 0 {
		t.Error("expected the default source registry to be populated")
	}
	if len(cfg.Scoring.Bands) == 0 {
		t.Error("expected the default evidence tier bands to be populated")
	}
}

func TestLoader_LoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
app:
  name: custom-ingest
  version: 2.0.0
  environment: staging
log:
  level: debug
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader(WithConfigPaths(configPath))
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "custom-ingest" {
		t.Errorf("expected app name 'custom-ingest', got %s", cfg.App.Name)
	}
	if cfg.App.Version != "2.0.0" {
		t.Errorf("expected version '2.0.0', got %s", cfg.App.Version)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Log.Level)
	}
}

func TestLoader_LoadFromEnv(t *testing.T) {
	os.Setenv("GENEINGEST_APP_NAME", "env-ingest")
	os.Setenv("GENEINGEST_LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("GENEINGEST_APP_NAME")
		os.Unsetenv("GENEINGEST_LOG_LEVEL")
	}()

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "env-ingest" {
		t.Errorf("expected app name 'env-ingest', got %s", cfg.App.Name)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn', got %s", cfg.Log.Level)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
app:
  name: file-ingest
log:
  level: error
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("GENEINGEST_APP_NAME", "env-override")
	defer os.Unsetenv("GENEINGEST_APP_NAME")

	cfg, err := NewLoader(WithConfigPaths(configPath)).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "env-override" {
		t.Errorf("expected env override, got %s", cfg.App.Name)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected log level from file 'error', got %s", cfg.Log.Level)
	}
}

func TestLoader_WithEnvPrefix(t *testing.T) {
	os.Setenv("CUSTOM_APP_NAME", "custom-prefix-ingest")
	defer os.Unsetenv("CUSTOM_APP_NAME")

	cfg, err := NewLoader(WithEnvPrefix("CUSTOM_")).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "custom-prefix-ingest" {
		t.Errorf("expected 'custom-prefix-ingest', got %s", cfg.App.Name)
	}
}

func TestMustLoad_Success(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustLoad should not panic with valid config")
		}
	}()

	cfg := MustLoad()
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoad_Simple(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoader_ConfigEnvVar(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom-config.yaml")

	configContent := `
app:
  name: config-env-var-ingest
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("CONFIG_PATH", configPath)
	defer os.Unsetenv("CONFIG_PATH")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.App.Name != "config-env-var-ingest" {
		t.Errorf("expected 'config-env-var-ingest', got %s", cfg.App.Name)
	}
}
