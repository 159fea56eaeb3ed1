package scoring

import "geneingest/pkg/config"

// bandFor derives the evidence_tier and evidence_group labels from a gene's
// percentage_score by walking bands (sorted descending by MinPercentage),
// the same threshold-cascade idiom the donor uses for efficiency grading.
// bands is expected to always match, since config.DefaultEvidenceTierBands
// includes a MinPercentage: 0 floor; an empty slice falls back to that floor.
func bandFor(percentage float64, bands []config.EvidenceTierBand) (tier, group string) {
	for _, b := range bands {
		if percentage >= b.MinPercentage {
			return b.Tier, b.Group
		}
	}
	return "minimal_evidence", "emerging"
}
