package payload

import "time"

// MergeOptions configures the field-matching rules needed by Merge: which
// object keys hold numeric scores (max-wins) versus dates (latest-wins).
// The allowlists are enumerated per source rather than inferred from
// shape, since guessing field semantics from a JSON value's type is
// unreliable across heterogeneous source payloads.
type MergeOptions struct {
	NumericScoreKeys map[string]bool
	DateKeys         map[string]bool
}

// Merge combines an existing payload E and an incoming payload N into M by
// recursing into shared object keys, set-unioning shared array keys
// (existing first, canonical-form dedup), max-ing configured numeric score
// keys, taking the later of configured date keys, and otherwise letting
// the incoming value win.
func Merge(existing, incoming Value, opts MergeOptions) Value {
	eObj, eIsObj := existing.Object()
	nObj, nIsObj := incoming.Object()

	if !eIsObj || !nIsObj {
		// Not both objects at this level: incoming wins outright, matching
		// the "otherwise M[k] = N[k]" fallback applied recursively.
		return incoming
	}

	merged := make(map[string]Value, len(eObj)+len(nObj))
	for k, v := range eObj {
		merged[k] = v
	}

	for k, nv := range nObj {
		ev, existsInE := eObj[k]
		switch {
		case !existsInE:
			merged[k] = nv

		case opts.NumericScoreKeys[k]:
			merged[k] = mergeNumericMax(ev, nv)

		case opts.DateKeys[k]:
			merged[k] = mergeLatestDate(ev, nv)

		case ev.kind == KindObject && nv.kind == KindObject:
			merged[k] = Merge(ev, nv, opts)

		case ev.kind == KindArray && nv.kind == KindArray:
			merged[k] = mergeArraySetUnion(ev, nv)

		default:
			merged[k] = nv
		}
	}

	return FromObject(merged)
}

func mergeNumericMax(existing, incoming Value) Value {
	en, eok := existing.Number()
	nn, nok := incoming.Number()
	switch {
	case eok && nok:
		if en >= nn {
			return existing
		}
		return incoming
	case nok:
		return incoming
	default:
		return existing
	}
}

func mergeLatestDate(existing, incoming Value) Value {
	es, eok := existing.String()
	ns, nok := incoming.String()
	if !eok {
		return incoming
	}
	if !nok {
		return existing
	}
	et, eerr := time.Parse(time.RFC3339, es)
	nt, nerr := time.Parse(time.RFC3339, ns)
	switch {
	case eerr != nil && nerr != nil:
		return incoming
	case eerr != nil:
		return incoming
	case nerr != nil:
		return existing
	case nt.After(et):
		return incoming
	default:
		return existing
	}
}

// mergeArraySetUnion unions two arrays by canonical string form,
// order-stable: existing elements first, new elements appended in their
// incoming order, duplicates dropped.
func mergeArraySetUnion(existing, incoming Value) Value {
	eArr, _ := existing.Array()
	nArr, _ := incoming.Array()

	seen := make(map[string]bool, len(eArr)+len(nArr))
	out := make([]Value, 0, len(eArr)+len(nArr))

	for _, v := range eArr {
		c := v.Canonical()
		if !seen[c] {
			seen[c] = true
			out = append(out, v)
		}
	}
	for _, v := range nArr {
		c := v.Canonical()
		if !seen[c] {
			seen[c] = true
			out = append(out, v)
		}
	}

	return FromArray(out)
}

// MergeHistoryEntry is one element of the top-level merge_history array.
type MergeHistoryEntry struct {
	MergedAt time.Time `json:"merged_at"`
	Source   string    `json:"source"`
	Version  int       `json:"version"`
}

// MaxMergeHistory caps merge_history to the 50 most recent entries.
const MaxMergeHistory = 50

// AppendMergeHistory appends an entry to merged's top-level merge_history
// array, truncating to the MaxMergeHistory most recent entries.
func AppendMergeHistory(merged Value, entry MergeHistoryEntry) Value {
	obj, ok := merged.Object()
	if !ok {
		obj = make(map[string]Value)
	} else {
		cp := make(map[string]Value, len(obj))
		for k, v := range obj {
			cp[k] = v
		}
		obj = cp
	}

	history, _ := obj["merge_history"].Array()
	entryVal := FromObject(map[string]Value{
		"merged_at": FromString(entry.MergedAt.UTC().Format(time.RFC3339)),
		"source":    FromString(entry.Source),
		"version":   FromNumber(float64(entry.Version)),
	})
	history = append(history, entryVal)
	if len(history) > MaxMergeHistory {
		history = history[len(history)-MaxMergeHistory:]
	}
	obj["merge_history"] = FromArray(history)

	return FromObject(obj)
}
