package progress

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

type persistMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *persistMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}
func (a *persistMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}
func (a *persistMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}
func (a *persistMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}
func (a *persistMockAdapter) Close()                         { a.mock.Close() }
func (a *persistMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

func TestPostgresPersister_Persist_UpsertsBySource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO data_source_progress`).
		WithArgs("panelapp", "running", 100, 40, 5, 2, 1, "fetching", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := NewPostgresPersister(&persistMockAdapter{mock: mock})
	err = p.Persist(context.Background(), SourceProgress{
		Source:           "panelapp",
		State:            StateRunning,
		Total:            100,
		Processed:        40,
		Added:            5,
		Updated:          2,
		Failed:           1,
		CurrentOperation: "fetching",
		StartedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
