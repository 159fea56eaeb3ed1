package scoring

import "strings"

// classificationWeights is the fixed Track B mapping from a classification
// string to its score weight, also reused by Track C's quality component.
// Track C's confidence component uses isHighConfidence instead.
var classificationWeights = map[string]float64{
	"Definitive":  1.0,
	"Strong":      0.8,
	"Moderate":    0.6,
	"Limited":     0.3,
	"Disputed":    0.1,
	"Refuted":     0.0,
	"No Evidence": 0.0,
	"Unknown":     0.5,
}

// weightFor returns a classification's weight, matched case-insensitively
// since GenCC submissions mix case ("Definitive" vs "definitive") across
// submitters. Defaults to the Unknown weight for a classification string
// the table doesn't recognize rather than silently dropping the source's
// contribution.
func weightFor(classification string) float64 {
	for label, w := range classificationWeights {
		if strings.EqualFold(label, classification) {
			return w
		}
	}
	return classificationWeights["Unknown"]
}

// isHighConfidence reports whether a classification counts toward Track
// C's confidence component, matched case-insensitively for the same reason
// as weightFor.
func isHighConfidence(classification string) bool {
	return strings.EqualFold(classification, "Definitive") || strings.EqualFold(classification, "Strong")
}
