package scoring

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// extractCount evaluates a CountPath expression against a raw evidence
// payload. A CountPath may combine several gjson paths with "+" (e.g.
// HPO's "hpo_terms.#+diseases.#"), summing each part's integer result.
func extractCount(raw []byte, countPath string) int {
	total := 0
	for _, part := range strings.Split(countPath, "+") {
		total += int(gjson.GetBytes(raw, strings.TrimSpace(part)).Int())
	}
	return total
}

// genccClassificationsPath is the fixed field GenCC's driver stores its
// per-gene classification list under: an array of objects each carrying a
// "classification" string. Unlike the count-based sources, GenCC has no
// single count field, so this path is fixed rather than configured.
const genccClassificationsPath = "classifications.#.classification"

// extractClassifications reads GenCC's classification list out of a raw
// evidence payload.
func extractClassifications(raw []byte) []string {
	result := gjson.GetBytes(raw, genccClassificationsPath)
	if !result.IsArray() {
		return nil
	}
	classifications := make([]string, 0, len(result.Array()))
	for _, v := range result.Array() {
		classifications = append(classifications, v.String())
	}
	return classifications
}

// genccRawScore computes Track C's per-gene raw score from its list of
// GenCC classifications: Quality + Quantity + Confidence components, each
// scaled by its fixed weight.
func genccRawScore(classifications []string) float64 {
	n := len(classifications)
	if n == 0 {
		return 0
	}

	var sumW, sumW2 float64
	highConfidence := 0
	for _, c := range classifications {
		w := weightFor(c)
		sumW += w
		sumW2 += w * w
		if isHighConfidence(c) {
			highConfidence++
		}
	}

	quality := 0.0
	if sumW > 0 {
		quality = (sumW2 / sumW) * 0.5
	}

	quantity := minFloat(1, math.Sqrt(float64(n)/5)) * 0.3
	confidence := (float64(highConfidence) / float64(n)) * 0.2

	return quality + quantity + confidence
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
