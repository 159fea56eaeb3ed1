package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5"

	"geneingest/internal/registry"
	"geneingest/pkg/config"
	"geneingest/pkg/database"
	"geneingest/pkg/telemetry"
)

// Engine is the stateless Scoring Engine: every ScoreGene call re-reads the
// evidence store and recomputes percentiles from scratch, per the
// component's explicit no-caching contract. RefreshMaterialized exists for
// backends that put a materialized view in front of this, triggered by the
// Orchestrator at end-of-run; the default Postgres schema has no such view
// so it is a no-op here.
type Engine struct {
	db    database.DB
	reg   *registry.Registry
	bands []config.EvidenceTierBand
}

// NewEngine builds an Engine over db, using reg to discover which sources
// are in the active scoring set and their track/count-path configuration.
// evidence_tier bands default to config.DefaultEvidenceTierBands(); override
// with WithBands.
func NewEngine(db database.DB, reg *registry.Registry) *Engine {
	return &Engine{db: db, reg: reg, bands: config.DefaultEvidenceTierBands()}
}

// WithBands overrides the evidence_tier bands, e.g. from
// config.Config.Scoring.Bands, sorting them descending by MinPercentage so
// bandFor's walk finds the tightest matching threshold first.
func (e *Engine) WithBands(bands []config.EvidenceTierBand) *Engine {
	if len(bands) == 0 {
		return e
	}
	sorted := append([]config.EvidenceTierBand(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPercentage > sorted[j].MinPercentage })
	e.bands = sorted
	return e
}

// ScoreGene computes geneID's full scoring breakdown.
func (e *Engine) ScoreGene(ctx context.Context, geneID int64) (ScoreResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "scoring.Engine.ScoreGene")
	defer span.End()

	sourceScores := make(map[string]float64)

	for _, name := range e.reg.ActiveScored() {
		cfg, ok := e.reg.Source(name)
		if !ok {
			continue
		}

		score, has, err := e.scoreForSource(ctx, cfg, geneID)
		if err != nil {
			return ScoreResult{}, fmt.Errorf("scoring: source %s: %w", name, err)
		}
		if has {
			sourceScores[name] = score
		}
	}

	totalActive := len(e.reg.ActiveScored())
	rawScore := 0.0
	for _, s := range sourceScores {
		rawScore += s
	}

	percentage := 0.0
	if totalActive > 0 {
		percentage = round2(rawScore / float64(totalActive) * 100)
	}

	tier, group := bandFor(percentage, e.bands)

	span.SetAttributes(telemetry.ScoringAttributes(group, tier, percentage, len(sourceScores))...)

	return ScoreResult{
		GeneID:          geneID,
		RawScore:        rawScore,
		PercentageScore: percentage,
		SourceScores:    sourceScores,
		EvidenceTier:    tier,
		EvidenceGroup:   group,
	}, nil
}

// RefreshMaterialized is the hook the Orchestrator calls at end-of-run for
// a backend with a materialized scoring view; a no-op against plain
// Postgres views.
func (e *Engine) RefreshMaterialized(ctx context.Context) error {
	return nil
}

func (e *Engine) scoreForSource(ctx context.Context, cfg config.SourceConfig, geneID int64) (float64, bool, error) {
	switch cfg.Track {
	case config.TrackA:
		return e.scoreTrackA(ctx, cfg, geneID)
	case config.TrackB:
		return e.scoreTrackB(ctx, cfg, geneID)
	case config.TrackC:
		return e.scoreTrackC(ctx, cfg, geneID)
	default:
		return 0, false, nil
	}
}

func (e *Engine) scoreTrackA(ctx context.Context, cfg config.SourceConfig, geneID int64) (float64, bool, error) {
	counts, err := e.loadCounts(ctx, cfg.Name, cfg.CountPath)
	if err != nil {
		return 0, false, err
	}

	count, ok := counts[geneID]
	if !ok || count <= 0 {
		return 0, false, nil
	}

	population := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			population = append(population, float64(c))
		}
	}

	return percentRank(population, float64(count)), true, nil
}

func (e *Engine) loadCounts(ctx context.Context, source, countPath string) (map[int64]int, error) {
	rows, err := e.db.Query(ctx, `SELECT gene_id, payload FROM gene_evidence WHERE source = $1`, source)
	if err != nil {
		return nil, fmt.Errorf("load evidence for %s: %w", source, err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var geneID int64
		var raw []byte
		if err := rows.Scan(&geneID, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", source, err)
		}
		counts[geneID] = extractCount(raw, countPath)
	}
	return counts, rows.Err()
}

func (e *Engine) scoreTrackB(ctx context.Context, cfg config.SourceConfig, geneID int64) (float64, bool, error) {
	var classification *string
	err := e.db.QueryRow(ctx,
		`SELECT classification FROM gene_evidence WHERE gene_id = $1 AND source = $2`,
		geneID, cfg.Name,
	).Scan(&classification)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load %s classification: %w", cfg.Name, err)
	}
	if classification == nil {
		return 0, false, nil
	}

	return weightFor(*classification), true, nil
}

func (e *Engine) scoreTrackC(ctx context.Context, cfg config.SourceConfig, geneID int64) (float64, bool, error) {
	rawScores, err := e.loadGenCCRawScores(ctx, cfg.Name)
	if err != nil {
		return 0, false, err
	}

	raw, ok := rawScores[geneID]
	if !ok {
		return 0, false, nil
	}

	population := make([]float64, 0, len(rawScores))
	for _, s := range rawScores {
		population = append(population, s)
	}

	return percentRank(population, raw), true, nil
}

func (e *Engine) loadGenCCRawScores(ctx context.Context, source string) (map[int64]float64, error) {
	rows, err := e.db.Query(ctx, `SELECT gene_id, payload FROM gene_evidence WHERE source = $1`, source)
	if err != nil {
		return nil, fmt.Errorf("load evidence for %s: %w", source, err)
	}
	defer rows.Close()

	scores := make(map[int64]float64)
	for rows.Next() {
		var geneID int64
		var raw []byte
		if err := rows.Scan(&geneID, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", source, err)
		}
		scores[geneID] = genccRawScore(extractClassifications(raw))
	}
	return scores, rows.Err()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
