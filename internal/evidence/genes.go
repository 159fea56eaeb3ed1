package evidence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"geneingest/pkg/apperror"
	"geneingest/pkg/telemetry"
)

// GetGene looks up a gene by surrogate ID.
func (s *Store) GetGene(ctx context.Context, id int64) (Gene, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.GetGene")
	defer span.End()

	return s.scanGene(ctx, `SELECT id, hgnc_id, symbol, aliases FROM genes WHERE id = $1`, id)
}

// GetGeneBySymbol looks up a gene by its current approved symbol.
func (s *Store) GetGeneBySymbol(ctx context.Context, symbol string) (Gene, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.GetGeneBySymbol")
	defer span.End()

	return s.scanGene(ctx, `SELECT id, hgnc_id, symbol, aliases FROM genes WHERE symbol = $1`, symbol)
}

func (s *Store) scanGene(ctx context.Context, query string, arg any) (Gene, error) {
	var g Gene
	err := s.db.QueryRow(ctx, query, arg).Scan(&g.ID, &g.HGNCID, &g.Symbol, &g.Aliases)
	if errors.Is(err, pgx.ErrNoRows) {
		return Gene{}, apperror.ErrGeneNotFound
	}
	if err != nil {
		return Gene{}, fmt.Errorf("evidence: get gene: %w", err)
	}
	return g, nil
}

// ListGenes returns every gene known to the store, ordered by symbol. It
// backs the Orchestrator's per-gene driver fan-out: only genes the
// normalizer has already resolved are ever handed to a driver.
func (s *Store) ListGenes(ctx context.Context) ([]Gene, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.ListGenes")
	defer span.End()

	rows, err := s.db.Query(ctx, `SELECT id, hgnc_id, symbol, aliases FROM genes ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("evidence: list genes: %w", err)
	}
	defer rows.Close()

	var genes []Gene
	for rows.Next() {
		var g Gene
		if err := rows.Scan(&g.ID, &g.HGNCID, &g.Symbol, &g.Aliases); err != nil {
			return nil, fmt.Errorf("evidence: scan gene row: %w", err)
		}
		genes = append(genes, g)
	}
	return genes, rows.Err()
}

// ResolveOrCreate is the Gene Normalizer's only write path to the genes
// table: it inserts a new gene the first time an HGNC ID is seen, or
// updates the symbol/aliases in place when HGNC data has changed for an
// already-known gene. hgncID, once non-empty, is never reassigned to a
// different gene.
func (s *Store) ResolveOrCreate(ctx context.Context, hgncID, symbol string, aliases []string) (Gene, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.ResolveOrCreate")
	defer span.End()

	var g Gene
	err := s.db.QueryRow(ctx,
		`INSERT INTO genes (hgnc_id, symbol, aliases)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (hgnc_id) DO UPDATE SET symbol = excluded.symbol, aliases = excluded.aliases
		 RETURNING id, hgnc_id, symbol, aliases`,
		hgncID, symbol, aliases,
	).Scan(&g.ID, &g.HGNCID, &g.Symbol, &g.Aliases)
	if err != nil {
		return Gene{}, fmt.Errorf("evidence: resolve gene %s/%s: %w", hgncID, symbol, err)
	}

	return g, nil
}

// CurationFor loads the database-trigger-maintained read-only curation row
// for a gene. It returns apperror.ErrGeneNotFound if the gene has no
// evidence yet (the trigger only creates a row on the first evidence write).
func (s *Store) CurationFor(ctx context.Context, geneID int64) (CurationRow, error) {
	ctx, span := telemetry.StartSpan(ctx, "evidence.Store.CurationFor")
	defer span.End()

	var row CurationRow
	err := s.db.QueryRow(ctx,
		`SELECT gene_id, classification, evidence_group, source_count, last_evidence_date
		 FROM gene_curations WHERE gene_id = $1`,
		geneID,
	).Scan(&row.GeneID, &row.Classification, &row.EvidenceGroup, &row.SourceCount, &row.LastEvidenceDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return CurationRow{}, apperror.ErrGeneNotFound
	}
	if err != nil {
		return CurationRow{}, fmt.Errorf("evidence: curation: %w", err)
	}

	return row, nil
}
