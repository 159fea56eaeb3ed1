package scoring

import (
	"testing"

	"geneingest/pkg/config"
)

func TestBandFor(t *testing.T) {
	bands := config.DefaultEvidenceTierBands()
	cases := []struct {
		pct   float64
		tier  string
		group string
	}{
		{80, "comprehensive_support", "well_supported"},
		{50, "multi_source_support", "well_supported"},
		{35, "established_support", "emerging"},
		{15, "preliminary_evidence", "emerging"},
		{5, "minimal_evidence", "emerging"},
	}
	for _, c := range cases {
		tier, group := bandFor(c.pct, bands)
		if tier != c.tier || group != c.group {
			t.Errorf("bandFor(%v) = (%s, %s), want (%s, %s)", c.pct, tier, group, c.tier, c.group)
		}
	}
}

func TestBandFor_EmptyBandsFallsBackToMinimal(t *testing.T) {
	tier, group := bandFor(42, nil)
	if tier != "minimal_evidence" || group != "emerging" {
		t.Errorf("bandFor with no bands = (%s, %s), want fallback", tier, group)
	}
}
