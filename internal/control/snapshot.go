package control

import (
	"context"
	"fmt"
)

// snapshotSchemaVersion is bumped whenever Snapshot's shape changes in a
// way that would break a consumer comparing two exports for parity.
const snapshotSchemaVersion = 1

// Snapshot is the export_snapshot payload: every gene's current view, plus
// a schema_version so two exports taken across runs can be diffed reliably
// even as the format evolves.
type Snapshot struct {
	SchemaVersion int        `json:"schema_version"`
	Genes         []GeneView `json:"genes"`
}

// ExportSnapshot builds a point-in-time export of every gene's curation and
// score, the data-surface operation used for run-to-run parity checks.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	genes, err := s.ListGenes(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("control: export snapshot: %w", err)
	}
	return Snapshot{SchemaVersion: snapshotSchemaVersion, Genes: genes}, nil
}
