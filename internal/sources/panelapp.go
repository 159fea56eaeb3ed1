package sources

import (
	"fmt"
	"net/url"
	"strconv"

	"geneingest/internal/fetch"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

// NewPanelApp builds the PanelApp driver: one REST call per gene, returning
// the list of disease panels the gene appears on. The scoring engine reads
// its count off the "panels" array via CountPath "panels.#". Each result
// entry also carries its own "confidence_level" (a "1"-"3" string) and
// "panel.last_updated" date; decode lifts the strongest confidence and the
// latest update across entries to the top level so a re-fetch's merge can
// apply numeric-max-wins and date-latest-wins against the prior payload.
func NewPanelApp(engine *fetch.Engine, cfg config.SourceConfig) registry.Driver {
	return &apiBase{
		name:    cfg.Name,
		engine:  engine,
		profile: sourceProfile(cfg),
		urlFor: func(gene registry.Gene) string {
			return fmt.Sprintf("https://panelapp.genomicsengland.co.uk/api/v1/genes/%s/", url.PathEscape(gene.Symbol))
		},
		decode: func(gene registry.Gene, raw []byte) (payload.Value, error) {
			body, err := decodeJSONObject(raw)
			if err != nil {
				return payload.Value{}, err
			}
			panels, _ := body.Get("results").Array()
			fields := map[string]payload.Value{
				"panels": payload.FromArray(panels),
			}
			if level, ok := highestConfidenceLevel(panels); ok {
				fields["confidence_level"] = payload.FromNumber(level)
			}
			if updated, ok := latestPanelUpdate(panels); ok {
				fields["last_updated"] = payload.FromString(updated)
			}
			return payload.FromObject(fields), nil
		},
	}
}

// highestConfidenceLevel returns the strongest (highest-numbered)
// confidence_level across panel entries.
func highestConfidenceLevel(panels []payload.Value) (float64, bool) {
	best := 0.0
	found := false
	for _, p := range panels {
		s, ok := p.Get("confidence_level").String()
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

// latestPanelUpdate returns the most recent panel.last_updated timestamp
// across panel entries, as an RFC3339 string.
func latestPanelUpdate(panels []payload.Value) (string, bool) {
	latest := ""
	for _, p := range panels {
		s, ok := p.Get("panel").Get("last_updated").String()
		if !ok {
			continue
		}
		if latest == "" || s > latest {
			latest = s
		}
	}
	return latest, latest != ""
}
