package sources

import (
	"fmt"
	"net/url"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewHPO builds the Human Phenotype Ontology driver: one REST call per gene,
// returning the gene's associated HPO terms and diseases. CountPath
// "hpo_terms.#+diseases.#" sums both arrays.
func NewHPO(engine *fetch.Engine, cfg config.SourceConfig) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("https://ontology.jax.org/api/network/annotation/%s", url.PathEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			body, err := decodeJSONObject(raw)
			if err != nil {
				return payload.Value{}, err
			}
			terms, _ := body.Get("terms").Array()
			diseases, _ := body.Get("diseases").Array()
			return payload.FromObject(map[string]payload.Value{
				"hpo_terms": payload.FromArray(terms),
				"diseases":  payload.FromArray(diseases),
			}), nil
		},
	}
}
