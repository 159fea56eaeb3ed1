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

// gnomadConstraintRecord is one row of the gnomAD constraint bulk export.
type gnomadConstraintRecord struct {
	Gene       string  `json:"gene"`
	Chromosome string  `json:"chromosome"`
	PLI        float64 `json:"pLI"`
	OELoF      float64 `json:"oe_lof"`
	Missense   float64 `json:"oe_mis"`
}

// GnoMAD builds the annotation-only gnomAD constraint driver: loss-of-
// function and missense constraint scores per gene, read once from the
// bulk export. IncludeSexChromosomes controls whether X/Y genes are kept
// during indexing.
type GnoMAD struct {
	name                  string
	engine                *fetch.Engine
	profile               fetch.Profile
	bulkURL               string
	cacheDir              string
	ttl                   time.Duration
	includeSexChromosomes bool

	mu       sync.RWMutex
	bySymbol map[string]gnomadConstraintRecord
}

func NewGnoMAD(engine *fetch.Engine, cfg config.SourceConfig, cacheDir string) *GnoMAD {
	return &GnoMAD{
		name:                  cfg.Name,
		engine:                engine,
		profile:               sourceProfile(cfg),
		bulkURL:               cfg.BulkURL,
		cacheDir:              cacheDir,
		ttl:                   cfg.DefaultTTL,
		includeSexChromosomes: cfg.IncludeSexChromosomes,
	}
}

func (g *GnoMAD) Name() string { return g.name }

func (g *GnoMAD) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	path, err := g.engine.DownloadBulk(ctx, g.profile, g.bulkURL, g.cacheDir, g.ttl)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gnomad: download bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gnomad: read bulk file: %w", err)
	}

	var rows []gnomadConstraintRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: gnomad: parse bulk file: %w", err)
	}

	bySymbol := make(map[string]gnomadConstraintRecord, len(rows))
	for _, rec := range rows {
		if !g.includeSexChromosomes && (rec.Chromosome == "X" || rec.Chromosome == "Y") {
			continue
		}
		bySymbol[strings.ToUpper(rec.Gene)] = rec
	}

	g.mu.Lock()
	g.bySymbol = bySymbol
	g.mu.Unlock()

	return registry.PrepareReport{ItemsLoaded: len(rows)}, nil
}

func (g *GnoMAD) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	g.mu.RLock()
	rec, ok := g.bySymbol[strings.ToUpper(gene.Symbol)]
	g.mu.RUnlock()
	if !ok {
		return payload.Null, nil
	}
	return payload.FromObject(map[string]payload.Value{
		"pli":    payload.FromNumber(rec.PLI),
		"oe_lof": payload.FromNumber(rec.OELoF),
		"oe_mis": payload.FromNumber(rec.Missense),
	}), nil
}

func (g *GnoMAD) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
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

func (g *GnoMAD) IsValid(value payload.Value) bool {
	return !value.IsNull()
}
