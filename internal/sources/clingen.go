package sources

import (
	"fmt"
	"net/url"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewClinGen builds the ClinGen Gene-Disease Validity driver: one REST call
// per gene, returning the strongest curated classification. Track B reads
// the "classification" field directly off the stored payload.
func NewClinGen(engine *fetch.Engine, cfg config.SourceConfig) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("https://search.clinicalgenome.org/api/genes/%s", url.PathEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			body, err := decodeJSONObject(raw)
			if err != nil {
				return payload.Value{}, err
			}
			records, _ := body.Get("gene_validity_assertions").Array()
			classification := strongestClassification(records)
			return payload.FromObject(map[string]payload.Value{
				"classification": payload.FromString(classification),
				"assertions":     payload.FromArray(records),
			}), nil
		},
	}
}

// clinGenRank orders ClinGen's classification vocabulary from strongest to
// weakest evidence.
var clinGenRank = []string{
	"Definitive", "Strong", "Moderate", "Limited", "Disputed", "Refuted", "No Known Disease Relationship",
}

func strongestClassification(records []payload.Value) string {
	best := ""
	bestRank := len(clinGenRank)
	for _, rec := range records {
		cls, ok := rec.Get("classification").String()
		if !ok {
			continue
		}
		for rank, label := range clinGenRank {
			if label == cls && rank < bestRank {
				best, bestRank = cls, rank
			}
		}
	}
	return best
}
