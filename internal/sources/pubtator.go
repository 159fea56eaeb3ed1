package sources

import (
	"fmt"
	"net/url"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewPubTator builds the PubTator literature-mining driver: one REST call
// per gene, returning matched publication IDs. CountPath "publications.#".
func NewPubTator(engine *fetch.Engine, cfg config.SourceConfig) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("https://www.ncbi.nlm.nih.gov/research/pubtator-api/publications/export/pubtator?text=%s", url.QueryEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			body, err := decodeJSONObject(raw)
			if err != nil {
				return payload.Value{}, err
			}
			pubs, _ := body.Get("results").Array()
			return payload.FromObject(map[string]payload.Value{
				"publications": payload.FromArray(pubs),
			}), nil
		},
	}
}
