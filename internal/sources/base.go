// Package sources holds one registry.Driver implementation per configured
// data source. Per-gene API drivers share apiBase's fetch/unmarshal
// plumbing; bulk-file drivers are separate types, each with its own
// Prepare/FetchBatch.
package sources

import (
	"context"
	"fmt"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// apiBase is embedded by every per-gene, HTTP-calling driver. urlFor builds
// the per-gene request URL; decode turns the raw response body into a
// payload.Value shaped the way the scoring engine's CountPath or
// classification lookup expects.
type apiBase struct {
	name    string
	engine  *fetch.Engine
	profile fetch.Profile
	urlFor  func(gene registry.Gene) string
	decode  func(gene registry.Gene, raw []byte) (payload.Value, error)
}

func (b *apiBase) Name() string { return b.name }

func (b *apiBase) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	return registry.PrepareReport{}, nil
}

func (b *apiBase) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	url := b.urlFor(gene)
	raw, err := b.engine.GET(ctx, b.profile, url, fetch.Options{
		CacheKey: gene.Symbol,
	})
	if err != nil {
		return payload.Value{}, fmt.Errorf("sources: %s: fetch %s: %w", b.name, gene.Symbol, err)
	}
	return b.decode(gene, raw)
}

// FetchBatch is the fallback for drivers that declare SupportsBulk without
// overriding it: it iterates genes in-process through FetchOne. Bulk-file
// drivers are separate types with their own FetchBatch.
func (b *apiBase) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, g := range genes {
		value, err := b.FetchOne(ctx, g)
		sink(g, value, err)
		if err != nil {
			report.Failed++
			continue
		}
		report.Fetched++
	}
	return report, nil
}

func (b *apiBase) IsValid(value payload.Value) bool {
	return !value.IsNull()
}

// decodeJSONObject is the common decode step: parse raw JSON into a
// payload.Value, failing closed on malformed bodies rather than caching
// garbage.
func decodeJSONObject(raw []byte) (payload.Value, error) {
	v, err := payload.Parse(raw)
	if err != nil {
		return payload.Value{}, fmt.Errorf("sources: decode json: %w", err)
	}
	return v, nil
}

// sourceProfile builds a fetch.Profile from a config.SourceConfig.
func sourceProfile(cfg config.SourceConfig) fetch.Profile {
	return fetch.Profile{Source: cfg.Name, MaxRetries: cfg.MaxRetries, DefaultTTL: cfg.DefaultTTL}
}
