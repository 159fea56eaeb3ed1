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

// hgncAnnotationRecord is the subset of HGNC's bulk schema surfaced as an
// annotation record, distinct from the Gene Normalizer's own resolution
// index built from the same file.
type hgncAnnotationRecord struct {
	Symbol     string `json:"symbol"`
	LocusType  string `json:"locus_type"`
	LocusGroup string `json:"locus_group"`
	DateApproved string `json:"date_approved_reserved"`
}

// HGNC builds the annotation-only HGNC driver: locus type/group and approval
// date per gene, read from the same bulk export the normalizer indexes, kept
// as a separate in-memory copy so the two concerns stay decoupled.
type HGNC struct {
	name     string
	engine   *fetch.Engine
	profile  fetch.Profile
	bulkURL  string
	cacheDir string
	ttl      time.Duration

	mu       sync.RWMutex
	bySymbol map[string]hgncAnnotationRecord
}

func NewHGNC(engine *fetch.Engine, cfg config.SourceConfig, bulkURL, cacheDir string) *HGNC {
	return &HGNC{
		name:     cfg.Name,
		engine:   engine,
		profile:  sourceProfile(cfg),
		bulkURL:  bulkURL,
		cacheDir: cacheDir,
		ttl:      cfg.DefaultTTL,
	}
}

func (h *HGNC) Name() string { return h.name }

func (h *HGNC) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	path, err := h.engine.DownloadBulk(ctx, h.profile, h.bulkURL, h.cacheDir, h.ttl)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: hgnc: download bulk file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: hgnc: read bulk file: %w", err)
	}

	var bulk struct {
		Response struct {
			Docs []hgncAnnotationRecord `json:"docs"`
		} `json:"response"`
	}
	if err := json.Unmarshal(data, &bulk); err != nil {
		return registry.PrepareReport{}, fmt.Errorf("sources: hgnc: parse bulk file: %w", err)
	}

	bySymbol := make(map[string]hgncAnnotationRecord, len(bulk.Response.Docs))
	for _, rec := range bulk.Response.Docs {
		bySymbol[strings.ToUpper(rec.Symbol)] = rec
	}

	h.mu.Lock()
	h.bySymbol = bySymbol
	h.mu.Unlock()

	return registry.PrepareReport{ItemsLoaded: len(bulk.Response.Docs)}, nil
}

func (h *HGNC) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	h.mu.RLock()
	rec, ok := h.bySymbol[strings.ToUpper(gene.Symbol)]
	h.mu.RUnlock()
	if !ok {
		return payload.Null, nil
	}
	return payload.FromObject(map[string]payload.Value{
		"locus_type":     payload.FromString(rec.LocusType),
		"locus_group":    payload.FromString(rec.LocusGroup),
		"date_approved":  payload.FromString(rec.DateApproved),
	}), nil
}

func (h *HGNC) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, gene := range genes {
		value, err := h.FetchOne(ctx, gene)
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

func (h *HGNC) IsValid(value payload.Value) bool {
	return !value.IsNull()
}
