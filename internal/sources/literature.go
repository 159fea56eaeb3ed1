package sources

import (
	"fmt"
	"net/url"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewLiterature builds the curated literature review driver. Unlike the
// public APIs, this source is internal-process: it calls out to the panel
// curation team's own citation-tracking service rather than a third party.
// CountPath "citations.#".
func NewLiterature(engine *fetch.Engine, cfg config.SourceConfig, baseURL string) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("%s/citations?gene=%s", baseURL, url.QueryEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			body, err := decodeJSONObject(raw)
			if err != nil {
				return payload.Value{}, err
			}
			citations, _ := body.Get("citations").Array()
			return payload.FromObject(map[string]payload.Value{
				"citations": payload.FromArray(citations),
			}), nil
		},
	}
}
