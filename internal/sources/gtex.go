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

// gtexExpressionRecord is one row of the GTEx median-expression bulk export:
// a gene's expression level per tissue.
type gtexExpressionRecord struct {
	Gene        string             `json:"gene"`
	TissueTPM   map[string]float64 `json:"tissue_median_tpm"`
}

// GTEx builds the annotation-only GTEx expression driver: per-tissue median
// expression levels, read once from the bulk export.
type GTEx struct {
	name     string
	engine   *fetch.Engine
	profile  fetch.Profile
	bulkURL  string
	cacheDir string
	ttl      time.Duration

	mu       sync.RWMutex
	bySymbol map[string]gtexExpressionRecord
}

func NewGTEx(engine *fetch.Engine, cfg config.SourceConfig, cacheDir string) *GTEx {
	return &GTEx{
		name:     cfg.Name,
		engine:   engine,
		profile:  sourceProfile(cfg),
		bulkURL:  cfg.BulkURL,
		cacheDir: cacheDir,
		ttl:      cfg.DefaultTTL,
	}
}

func (g *GTEx) Name() string { return g.name }

func (g *GTEx) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	path, err := g.engine.DownloadBulk(ctx, g.profile, g.bulkURL, g.cacheDir, g.ttl)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gtex: download bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gtex: read bulk file: %w", err)
	}

	var rows []gtexExpressionRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gtex: parse bulk file: %w", err)
	}

	bySymbol := make(map[string]gtexExpressionRecord, len(rows))
	for _, rec := range rows {
		bySymbol[strings.ToUpper(rec.Gene)] = rec
	}

	g.mu.Lock()
	g.bySymbol = bySymbol
	g.mu.Unlock()

	return registry.PrepareReport{ItemsLoaded: len(rows)}, nil
}

func (g *GTEx) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	g.mu.RLock()
	rec, ok := g.bySymbol[strings.ToUpper(gene.Symbol)]
	g.mu.RUnlock()
	if !ok {
		return payload.Null, nil
	}

	tissues := make(map[string]payload.Value, len(rec.TissueTPM))
	for tissue, tpm := range rec.TissueTPM {
		tissues[tissue] = payload.FromNumber(tpm)
	}
	return payload.FromObject(map[string]payload.Value{
		"tissue_median_tpm": payload.FromObject(tissues),
	}), nil
}

func (g *GTEx) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, gene := range genes {
		value, err := g.FetchOne(ctx, gene)
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

func (g *GTEx) IsValid(value payload.Value) bool {
	return !value.IsNull()
}
