package normalize

import (
	"context"
	"fmt"
	"strings"

	"geneingest/pkg/database"
)

// PostgresLog persists unresolved/ambiguous lookups to
// gene_normalization_log, so they are kept for later inspection instead of
// vanishing into a single Resolve call's return value. Nothing in this
// module reads the table back.
type PostgresLog struct {
	db database.DB
}

// NewPostgresLog builds a PostgresLog over db.
func NewPostgresLog(db database.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

// Record implements LogRecorder.
func (l *PostgresLog) Record(ctx context.Context, entry LogEntry) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO gene_normalization_log (input, candidates, reason, logged_at) VALUES ($1, $2, $3, $4)`,
		entry.Input, strings.Join(entry.Candidates, ","), entry.Reason, entry.LoggedAt,
	)
	if err != nil {
		return fmt.Errorf("normalize: record log entry: %w", err)
	}
	return nil
}
