package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// clinvarVariantRecord is one row of the ClinVar variant summary bulk
// export, aggregated per gene.
type clinvarVariantRecord struct {
	GeneSymbol           string `json:"gene_symbol"`
	ClinicalSignificance string `json:"clinical_significance"`
}

// ClinVar builds the annotation-only ClinVar variant summary driver:
// pathogenic/benign variant counts per gene, read once from the bulk export.
type ClinVar struct {
	name     string
	engine   *fetch.Engine
	profile  fetch.Profile
	bulkURL  string
	cacheDir string
	ttl      time.Duration

	mu       sync.RWMutex
	bySymbol map[string][]clinvarVariantRecord
}

func NewClinVar(engine *fetch.Engine, cfg config.SourceConfig, cacheDir string) *ClinVar {
	return &ClinVar{
		name:     cfg.Name,
		engine:   engine,
		profile:  sourceProfile(cfg),
		bulkURL:  cfg.BulkURL,
		cacheDir: cacheDir,
		ttl:      cfg.DefaultTTL,
	}
}

func (c *ClinVar) Name() string { return c.name }

func (c *ClinVar) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	path, err := c.engine.DownloadBulk(ctx, c.profile, c.bulkURL, c.cacheDir, c.ttl)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: clinvar: download bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: clinvar: read bulk file: %w", err)
	}

	var rows []clinvarVariantRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: clinvar: parse bulk file: %w", err)
	}

	bySymbol := make(map[string][]clinvarVariantRecord, len(rows))
	for _, rec := range rows {
		key := strings.ToUpper(rec.GeneSymbol)
		bySymbol[key] = append(bySymbol[key], rec)
	}

	c.mu.Lock()
	c.bySymbol = bySymbol
	c.mu.Unlock()

	return registry.PrepareReport{ItemsLoaded: len(rows)}, nil
}

func (c *ClinVar) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	c.mu.RLock()
	records := c.bySymbol[strings.ToUpper(gene.Symbol)]
	c.mu.RUnlock()
	if len(records) == 0 {
		return payload.Null, nil
	}

	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.ClinicalSignificance]++
	}
	fields := make(map[string]payload.Value, len(counts))
	for sig, n := range counts {
		fields[sig] = payload.FromNumber(float64(n))
	}
	return payload.FromObject(map[string]payload.Value{
		"variant_counts": payload.FromObject(fields),
	}), nil
}

func (c *ClinVar) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, gene := range genes {
		value, err := c.FetchOne(ctx, gene)
		if err != nil {
			sink(gene, value, err)
			report.Failed++
			continue
		}
		if value.IsNull() {
			sink(gene, value, nil)
			report.Skipped++
			continue
		}
		sink(gene, value, nil)
		report.Fetched++
	}
	return report, nil
}

func (c *ClinVar) IsValid(value payload.Value) bool {
	return !value.IsNull()
}
