package scoring

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"geneingest/internal/payload"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

type noopDriver struct{ name string }

func (d noopDriver) Name() string { return d.name }
func (d noopDriver) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	return registry.PrepareReport{}, nil
}
func (d noopDriver) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	return payload.Null, nil
}
func (d noopDriver) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	return registry.BatchReport{}, nil
}
func (d noopDriver) IsValid(v payload.Value) bool { return true }

type engineMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *engineMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}
func (a *engineMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}
func (a *engineMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}
func (a *engineMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}
func (a *engineMockAdapter) Close()                         { a.mock.Close() }
func (a *engineMockAdapter) Ping(ctx context.Context) error { return a.mock.Ping(ctx) }

func testRegistry() *registry.Registry {
	reg := registry.New([]config.SourceConfig{
		{Name: "panelapp", Track: config.TrackA, CountPath: "panels.#"},
		{Name: "clingen", Track: config.TrackB},
		{Name: "hgnc", Track: config.TrackNone},
	})
	_ = reg.RegisterDriver(noopDriver{name: "panelapp"})
	_ = reg.RegisterDriver(noopDriver{name: "clingen"})
	_ = reg.RegisterDriver(noopDriver{name: "hgnc"})
	return reg
}

func TestEngine_ScoreGene_DenominatorIsTotalActiveScoredNotGenesSources(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reg := testRegistry()
	engine := NewEngine(&engineMockAdapter{mock: mock}, reg)

	// panelapp: genes 1, 2, 3 have counts 1, 5, 10 respectively. Gene 1 ranks
	// lowest among 3 nonzero counts -> percent_rank = 0/(3-1) = 0.
	mock.ExpectQuery(`SELECT gene_id, payload FROM gene_evidence WHERE source = \$1`).
		WithArgs("panelapp").
		WillReturnRows(pgxmock.NewRows([]string{"gene_id", "payload"}).
			AddRow(int64(1), []byte(`{"panels":["A"]}`)).
			AddRow(int64(2), []byte(`{"panels":["A","B","C","D","E"]}`)).
			AddRow(int64(3), []byte(`{"panels":["A","B","C","D","E","F","G","H","I","J"]}`)))

	// clingen: no row for gene 1 (source has no evidence for this gene).
	mock.ExpectQuery(`SELECT classification FROM gene_evidence WHERE gene_id = \$1 AND source = \$2`).
		WithArgs(int64(1), "clingen").
		WillReturnError(pgx.ErrNoRows)

	result, err := engine.ScoreGene(context.Background(), 1)
	require.NoError(t, err)

	// Only panelapp contributed (percentile 0), but the denominator is 2
	// active scored sources (panelapp + clingen), not 1.
	require.InDelta(t, 0.0, result.PercentageScore, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ScoreGene_ClassificationSourceContributesWeight(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	reg := testRegistry()
	engine := NewEngine(&engineMockAdapter{mock: mock}, reg)

	mock.ExpectQuery(`SELECT gene_id, payload FROM gene_evidence WHERE source = \$1`).
		WithArgs("panelapp").
		WillReturnRows(pgxmock.NewRows([]string{"gene_id", "payload"}))

	mock.ExpectQuery(`SELECT classification FROM gene_evidence WHERE gene_id = \$1 AND source = \$2`).
		WithArgs(int64(7), "clingen").
		WillReturnRows(pgxmock.NewRows([]string{"classification"}).AddRow("Definitive"))

	result, err := engine.ScoreGene(context.Background(), 7)
	require.NoError(t, err)

	// clingen alone contributes weight 1.0 out of 2 active scored sources.
	require.InDelta(t, 50.0, result.PercentageScore, 1e-9)
	require.Equal(t, "multi_source_support", result.EvidenceTier)
	require.NoError(t, mock.ExpectationsWereMet())
}
