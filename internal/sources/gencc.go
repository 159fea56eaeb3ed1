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

// genccRecord is one row of the GenCC bulk submissions file, the subset
// Track C's weighted-then-percentile score needs.
type genccRecord struct {
	GeneSymbol     string `json:"gene_symbol"`
	Classification string `json:"classification_title"`
}

// GenCC builds Track C's per-gene classification list from the GenCC bulk
// submissions export, grouping every classification asserted for a gene.
type GenCC struct {
	name     string
	engine   *fetch.Engine
	profile  fetch.Profile
	bulkURL  string
	cacheDir string
	ttl      time.Duration

	mu     sync.RWMutex
	byGene map[string][]genccRecord
}

// NewGenCC builds the GenCC driver.
func NewGenCC(engine *fetch.Engine, cfg config.SourceConfig, cacheDir string) *GenCC {
	return &GenCC{
		name:     cfg.Name,
		engine:   engine,
		profile:  sourceProfile(cfg),
		bulkURL:  cfg.BulkURL,
		cacheDir: cacheDir,
		ttl:      cfg.DefaultTTL,
	}
}

func (g *GenCC) Name() string { return g.name }

// Prepare downloads (or reuses) the GenCC bulk file and indexes every
// classification record by gene symbol.
func (g *GenCC) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	path, err := g.engine.DownloadBulk(ctx, g.profile, g.bulkURL, g.cacheDir, g.ttl)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gencc: download bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gencc: read bulk file: %w", err)
	}

	var rows []genccRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gencc: parse bulk file: %w", err)
	}

	byGene := make(map[string][]genccRecord, len(rows))
	for _, r := range rows {
		key := strings.ToUpper(r.GeneSymbol)
		byGene[key] = append(byGene[key], r)
	}

	g.mu.Lock()
	g.byGene = byGene
	g.mu.Unlock()

	return registry.PrepareReport{ItemsLoaded: len(rows)}, nil
}

func (g *GenCC) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	g.mu.RLock()
	records := g.byGene[strings.ToUpper(gene.Symbol)]
	g.mu.RUnlock()
	return g.encode(records), nil
}

// FetchBatch iterates genes in-process against the in-memory index built by
// Prepare, with no further network I/O.
func (g *GenCC) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, gene := range genes {
		value, _ := g.FetchOne(ctx, gene)
		sink(gene, value, nil)
		report.Fetched++
	}
	return report, nil
}

func (g *GenCC) IsValid(value payload.Value) bool {
	return !value.IsNull()
}

func (g *GenCC) encode(records []genccRecord) payload.Value {
	items := make([]payload.Value, 0, len(records))
	for _, r := range records {
		items = append(items, payload.FromObject(map[string]payload.Value{
			"classification": payload.FromString(r.Classification),
		}))
	}
	return payload.FromObject(map[string]payload.Value{
		"classifications": payload.FromArray(items),
	})
}
