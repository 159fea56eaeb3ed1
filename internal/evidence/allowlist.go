package evidence

import "geneingest/internal/payload"

// mergeProfiles enumerates, per classification- or count-based source, the
// payload fields that are numeric scores (max-wins on merge) versus dates
// (latest-wins on merge). These are fixed by the shape each source's fetch
// driver actually produces, not inferred from a value's JSON type: a count
// field and a confidence field can both be numbers, and only the source's
// own semantics say which is which.
//
// Annotation-only sources (gnomAD, GTEx, UniProt, ClinVar, HGNC) are absent
// here: annotations are replaced wholesale and never go through Merge.
//
// Only panelapp is listed: it is the one driver (internal/sources/panelapp.go)
// whose decode actually lifts a numeric confidence and a date to the top
// level of its payload ("confidence_level", "last_updated", derived from the
// per-panel fields PanelApp's API returns). hpo, pubtator, literature,
// clingen, and gencc's decode functions emit only arrays and classification
// strings with no numeric-score or date field of their own, so they are left
// out rather than pointed at keys no driver produces.
var mergeProfiles = map[string]payload.MergeOptions{
	"panelapp": {
		NumericScoreKeys: keySet("confidence_level"),
		DateKeys:         keySet("last_updated"),
	},
}

// MergeOptionsFor returns the merge profile for source, or an empty profile
// (pure incoming-wins, array set-union) for sources with no numeric score
// or date fields of note.
func MergeOptionsFor(source string) payload.MergeOptions {
	if opts, ok := mergeProfiles[source]; ok {
		return opts
	}
	return payload.MergeOptions{}
}

func keySet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
