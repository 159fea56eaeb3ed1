package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"geneingest/internal/payload"
	"geneingest/pkg/apperror"
	"geneingest/pkg/database"
	"geneingest/pkg/telemetry"
)

// maxStaleWriteRetries bounds the optimistic-concurrency retry loop in
// UpsertEvidence: each attempt is its own transaction, re-reading the
// current row so a concurrent writer's commit is visible to the retry.
// Conflicts retry transparently up to this many times before surfacing.
const maxStaleWriteRetries = 3

var errStaleWrite = errors.New("evidence: version column changed since read")

// Store is the transactional Evidence Store & Merger.
type Store struct {
	db database.DB
}

// NewStore builds a Store over db.
func NewStore(db database.DB) *Store {
	return &Store{db: db}
}

// UpsertEvidence merges incoming into the existing payload for (geneID,
// source), or inserts a new row if none exists. classification is written
// only when non-nil, leaving the existing value untouched otherwise (a
// driver that doesn't carry classification data must not blank it out).
func (s *Store) UpsertEvidence(ctx context.Context, geneID int64, source string, incoming payload.Value, classification *string) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.UpsertEvidence")
	defer span.End()

	for attempt := 0; attempt < maxStaleWriteRetries; attempt++ {
		outcome, err := database.WithTransactionResult(ctx, s.db, func(tx pgx.Tx) (Outcome, error) {
			return s.upsertEvidenceTx(ctx, tx, geneID, source, incoming, classification)
		})
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, errStaleWrite) {
			return outcome, err
		}
	}

	return OutcomeUpdated, apperror.Wrap(errStaleWrite, apperror.CodeInternal,
		"evidence: exhausted retries on concurrent write").
		WithDetails("gene_id", geneID).WithDetails("source", source)
}

func (s *Store) upsertEvidenceTx(ctx context.Context, tx pgx.Tx, geneID int64, source string, incoming payload.Value, classification *string) (Outcome, error) {
	var (
		id          int64
		raw         []byte
		version     int
		existingCls *string
	)

	err := tx.QueryRow(ctx,
		`SELECT id, payload, version, classification FROM gene_evidence WHERE gene_id = $1 AND source = $2`,
		geneID, source,
	).Scan(&id, &raw, &version, &existingCls)

	if errors.Is(err, pgx.ErrNoRows) {
		merged := payload.AppendMergeHistory(incoming, payload.MergeHistoryEntry{
			MergedAt: time.Now(), Source: source, Version: 1,
		})
		data, merr := json.Marshal(merged)
		if merr != nil {
			return 0, fmt.Errorf("evidence: marshal payload: %w", merr)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO gene_evidence (gene_id, source, payload, classification, version, first_seen, last_updated)
			 VALUES ($1, $2, $3, $4, 1, now(), now())`,
			geneID, source, data, classification,
		)
		if err != nil {
			return 0, fmt.Errorf("evidence: insert: %w", err)
		}
		return OutcomeInserted, nil
	}
	if err != nil {
		return 0, fmt.Errorf("evidence: select: %w", err)
	}

	existing, perr := payload.Parse(raw)
	if perr != nil {
		return 0, fmt.Errorf("evidence: parse stored payload: %w", perr)
	}

	merged := payload.Merge(existing, incoming, MergeOptionsFor(source))
	merged = payload.AppendMergeHistory(merged, payload.MergeHistoryEntry{
		MergedAt: time.Now(), Source: source, Version: version + 1,
	})
	data, merr := json.Marshal(merged)
	if merr != nil {
		return 0, fmt.Errorf("evidence: marshal payload: %w", merr)
	}

	newCls := existingCls
	if classification != nil {
		newCls = classification
	}

	tag, err := tx.Exec(ctx,
		`UPDATE gene_evidence SET payload = $1, classification = $2, version = $3, last_updated = now()
		 WHERE id = $4 AND version = $5`,
		data, newCls, version+1, id, version,
	)
	if err != nil {
		return 0, fmt.Errorf("evidence: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, errStaleWrite
	}

	return OutcomeUpdated, nil
}

// UpsertAnnotation replaces an annotation payload wholesale; annotations
// are never merged.
func (s *Store) UpsertAnnotation(ctx context.Context, geneID int64, source string, incoming payload.Value) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.UpsertAnnotation")
	defer span.End()

	data, err := json.Marshal(incoming)
	if err != nil {
		return 0, fmt.Errorf("evidence: marshal annotation payload: %w", err)
	}

	var inserted bool
	err = s.db.QueryRow(ctx,
		`INSERT INTO gene_annotations (gene_id, source, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (gene_id, source) DO UPDATE SET payload = excluded.payload, updated_at = now()
		 RETURNING (xmax = 0)`,
		geneID, source, data,
	).Scan(&inserted)
	if err != nil {
		return 0, fmt.Errorf("evidence: upsert annotation: %w", err)
	}

	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

// LoadEvidenceFor returns every Evidence Record for geneID, ordered by
// source for deterministic scoring input.
func (s *Store) LoadEvidenceFor(ctx context.Context, geneID int64) ([]EvidenceRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.LoadEvidenceFor")
	defer span.End()

	rows, err := s.db.Query(ctx,
		`SELECT id, gene_id, source, payload, classification, first_seen, last_updated, version
		 FROM gene_evidence WHERE gene_id = $1 ORDER BY source`,
		geneID,
	)
	if err != nil {
		return nil, fmt.Errorf("evidence: load: %w", err)
	}
	defer rows.Close()

	var records []EvidenceRecord
	for rows.Next() {
		var (
			rec EvidenceRecord
			raw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.GeneID, &rec.Source, &raw, &rec.Classification, &rec.FirstSeen, &rec.LastUpdated, &rec.Version); err != nil {
			return nil, fmt.Errorf("evidence: scan: %w", err)
		}
		val, err := payload.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("evidence: parse payload for source %s: %w", rec.Source, err)
		}
		rec.Payload = val
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("evidence: rows: %w", err)
	}

	return records, nil
}

// DeleteSource cascade-removes every evidence and annotation row for a
// retired source, returning the total number of rows removed.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.DeleteSource")
	defer span.End()

	return database.WithTransactionResult(ctx, s.db, func(tx pgx.Tx) (int, error) {
		evTag, err := tx.Exec(ctx, `DELETE FROM gene_evidence WHERE source = $1`, source)
		if err != nil {
			return 0, fmt.Errorf("evidence: delete evidence rows: %w", err)
		}
		annTag, err := tx.Exec(ctx, `DELETE FROM gene_annotations WHERE source = $1`, source)
		if err != nil {
			return 0, fmt.Errorf("evidence: delete annotation rows: %w", err)
		}
		return int(evTag.RowsAffected() + annTag.RowsAffected()), nil
	})
}
