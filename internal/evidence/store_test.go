package evidence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"geneingest/internal/payload"
	"geneingest/pkg/apperror"
)

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() { a.mock.Close() }

func (a *pgxMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

func setupMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return mock, NewStore(&pgxMockAdapter{mock: mock})
}

func TestStore_UpsertEvidence_InsertsWhenAbsent(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload, version, classification FROM gene_evidence`).
		WithArgs(int64(1), "panelapp").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO gene_evidence`).
		WithArgs(int64(1), "panelapp", pgxmock.AnyArg(), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	incoming := payload.FromObject(map[string]payload.Value{"panels": payload.FromArray(nil)})
	outcome, err := store.UpsertEvidence(ctx, 1, "panelapp", incoming, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertEvidence_MergesWhenPresent(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	existing := payload.FromObject(map[string]payload.Value{
		"panels": payload.FromArray([]payload.Value{payload.FromString("PanelA")}),
	})
	existingRaw, err := json.Marshal(existing)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload, version, classification FROM gene_evidence`).
		WithArgs(int64(1), "panelapp").
		WillReturnRows(pgxmock.NewRows([]string{"id", "payload", "version", "classification"}).
			AddRow(int64(7), existingRaw, 1, (*string)(nil)))
	mock.ExpectExec(`UPDATE gene_evidence`).
		WithArgs(pgxmock.AnyArg(), (*string)(nil), 2, int64(7), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	incoming := payload.FromObject(map[string]payload.Value{
		"panels": payload.FromArray([]payload.Value{payload.FromString("PanelB")}),
	})
	outcome, err := store.UpsertEvidence(ctx, 1, "panelapp", incoming, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertEvidence_RetriesOnStaleWrite(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	existingRaw, err := json.Marshal(payload.FromObject(map[string]payload.Value{}))
	require.NoError(t, err)

	// First attempt: the UPDATE affects 0 rows (another writer won the race).
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload, version, classification FROM gene_evidence`).
		WithArgs(int64(1), "clingen").
		WillReturnRows(pgxmock.NewRows([]string{"id", "payload", "version", "classification"}).
			AddRow(int64(9), existingRaw, 1, (*string)(nil)))
	mock.ExpectExec(`UPDATE gene_evidence`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	// Second attempt: re-read sees the newer version and succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, payload, version, classification FROM gene_evidence`).
		WithArgs(int64(1), "clingen").
		WillReturnRows(pgxmock.NewRows([]string{"id", "payload", "version", "classification"}).
			AddRow(int64(9), existingRaw, 2, (*string)(nil)))
	mock.ExpectExec(`UPDATE gene_evidence`).
		WithArgs(pgxmock.AnyArg(), (*string)(nil), 3, int64(9), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := store.UpsertEvidence(ctx, 1, "clingen", payload.FromObject(map[string]payload.Value{}), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertEvidence_ExhaustsRetriesOnRepeatedStaleWrite(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	existingRaw, err := json.Marshal(payload.FromObject(map[string]payload.Value{}))
	require.NoError(t, err)

	// Every attempt loses the race: the UPDATE affects 0 rows each time, so
	// the loop runs maxStaleWriteRetries times and then gives up.
	for i := 0; i < maxStaleWriteRetries; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT id, payload, version, classification FROM gene_evidence`).
			WithArgs(int64(1), "clingen").
			WillReturnRows(pgxmock.NewRows([]string{"id", "payload", "version", "classification"}).
				AddRow(int64(9), existingRaw, 1, (*string)(nil)))
		mock.ExpectExec(`UPDATE gene_evidence`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()
	}

	_, err = store.UpsertEvidence(ctx, 1, "clingen", payload.FromObject(map[string]payload.Value{}), nil)
	require.Error(t, err)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperror.CodeInternal, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertAnnotation_ReplacesWholesale(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO gene_annotations`).
		WithArgs(int64(2), "gnomad", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	outcome, err := store.UpsertAnnotation(ctx, 2, "gnomad", payload.FromObject(map[string]payload.Value{
		"pli": payload.FromNumber(0.98),
	}))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadEvidenceFor_ParsesPayloads(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	raw, err := json.Marshal(payload.FromObject(map[string]payload.Value{"confidence_level": payload.FromNumber(3)}))
	require.NoError(t, err)
	now := time.Now()

	mock.ExpectQuery(`SELECT id, gene_id, source, payload, classification, first_seen, last_updated, version FROM gene_evidence`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "gene_id", "source", "payload", "classification", "first_seen", "last_updated", "version",
		}).AddRow(int64(1), int64(5), "panelapp", raw, (*string)(nil), now, now, 1))

	records, err := store.LoadEvidenceFor(ctx, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "panelapp", records[0].Source)

	level, ok := records[0].Payload.Get("confidence_level").Number()
	require.True(t, ok)
	require.Equal(t, float64(3), level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteSource_SumsBothTables(t *testing.T) {
	mock, store := setupMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM gene_evidence WHERE source = \$1`).
		WithArgs("clinvar").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM gene_annotations WHERE source = \$1`).
		WithArgs("clinvar").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := store.DeleteSource(ctx, "clinvar")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
