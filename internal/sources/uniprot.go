package sources

import (
	"fmt"
	"net/url"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewUniProt builds the UniProt Features driver: one REST call per gene,
// returning protein domain/feature annotations. Annotation-only (TrackNone):
// never merged, always replaced wholesale.
func NewUniProt(engine *fetch.Engine, cfg config.SourceConfig) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("https://rest.uniprot.org/uniprotkb/search?query=gene:%s+AND+organism_id:9606&format=json", url.QueryEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			return decodeJSONObject(raw)
		},
	}
}
