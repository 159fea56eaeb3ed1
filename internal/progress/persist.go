package progress

import (
	"context"

	"geneingest/pkg/database"
	"geneingest/pkg/telemetry"
)

// PostgresPersister writes Source Progress Rows to the data_source_progress
// table, upserting on source.
type PostgresPersister struct {
	db database.DB
}

// NewPostgresPersister builds a PostgresPersister.
func NewPostgresPersister(db database.DB) *PostgresPersister {
	return &PostgresPersister{db: db}
}

// Persist upserts p's Source Progress Row.
func (p *PostgresPersister) Persist(ctx context.Context, prog SourceProgress) error {
	ctx, span := telemetry.StartSpan(ctx, "progress.PostgresPersister.Persist")
	defer span.End()

	_, err := p.db.Exec(ctx, `
		INSERT INTO data_source_progress
			(source, state, total, processed, added, updated, failed,
			 current_operation, last_error, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (source) DO UPDATE SET
			state = excluded.state,
			total = excluded.total,
			processed = excluded.processed,
			added = excluded.added,
			updated = excluded.updated,
			failed = excluded.failed,
			current_operation = excluded.current_operation,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`,
		prog.Source, string(prog.State), prog.Total, prog.Processed, prog.Added,
		prog.Updated, prog.Failed, prog.CurrentOperation, prog.LastError,
		prog.StartedAt, prog.UpdatedAt)
	return err
}
