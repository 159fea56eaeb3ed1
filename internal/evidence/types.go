// Package evidence owns the canonical Gene entity and the transactional
// store for Evidence and Annotation Records: upsert-with-merge for
// evidence, wholesale replace for annotations, plus the read-only
// curation view a database trigger maintains.
package evidence

import (
	"time"

	"geneingest/internal/payload"
)

// Gene is the canonical reference entity every Evidence and Annotation
// Record hangs off of.
type Gene struct {
	ID      int64
	HGNCID  string
	Symbol  string
	Aliases []string
}

// EvidenceRecord is one source's assertion about a gene, merged in place
// across fetches.
type EvidenceRecord struct {
	ID             int64
	GeneID         int64
	Source         string
	Payload        payload.Value
	Classification *string
	FirstSeen      time.Time
	LastUpdated    time.Time
	Version        int
}

// AnnotationRecord is a per-gene annotation payload, replaced wholesale on
// every refresh rather than merged.
type AnnotationRecord struct {
	ID        int64
	GeneID    int64
	Source    string
	Payload   payload.Value
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CurationRow is the read-only aggregate view a Postgres trigger maintains
// on every evidence write. Application code never writes to it.
type CurationRow struct {
	GeneID           int64
	Classification   *string
	EvidenceGroup    *string
	SourceCount      int
	LastEvidenceDate *time.Time
}

// Outcome reports whether an upsert inserted a new row or merged into an
// existing one, so callers (the Orchestrator's per-source counters) can
// track added-vs-updated without a second query.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
)

func (o Outcome) String() string {
	if o == OutcomeInserted {
		return "inserted"
	}
	return "updated"
}
