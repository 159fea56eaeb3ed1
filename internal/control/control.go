// Package control implements the external interface: the control surface
// (trigger/trigger_all/pause/resume/cancel/status/subscribe) and the data
// surface (get_gene/list_genes/export_snapshot), as plain Go interfaces
// with no transport of their own. Whatever API layer sits in front of this
// package — gRPC, HTTP, a CLI — is an out-of-scope external collaborator.
package control

import (
	"context"

	"geneingest/internal/evidence"
	"geneingest/internal/orchestrator"
	"geneingest/internal/progress"
	"geneingest/internal/scoring"
)

// Orchestrator is the subset of *orchestrator.Orchestrator the Service
// needs for its control-surface methods.
type Orchestrator interface {
	Trigger(ctx context.Context, source string) (orchestrator.RunHandle, error)
	TriggerAll(ctx context.Context) (orchestrator.RunHandle, error)
	Pause(ctx context.Context, source string) error
	Resume(ctx context.Context, source string) error
	Cancel(source string) error
	Status() []progress.SourceProgress
	Subscribe() (id string, events <-chan progress.Event, unsubscribe func())
	RunStatus(runID string) (orchestrator.Run, bool)
}

// GeneReader is the subset of *evidence.Store the Service needs for its
// data-surface methods.
type GeneReader interface {
	GetGene(ctx context.Context, id int64) (evidence.Gene, error)
	GetGeneBySymbol(ctx context.Context, symbol string) (evidence.Gene, error)
	ListGenes(ctx context.Context) ([]evidence.Gene, error)
	CurationFor(ctx context.Context, geneID int64) (evidence.CurationRow, error)
}

// Scorer is the subset of *scoring.Engine the Service needs to include a
// gene's current score in both the data surface and the snapshot export.
type Scorer interface {
	ScoreGene(ctx context.Context, geneID int64) (scoring.ScoreResult, error)
}

// Service composes the Orchestrator, Evidence Store, and Scoring Engine
// into the one surface an external API layer is expected to call through.
type Service struct {
	orch   Orchestrator
	genes  GeneReader
	scorer Scorer
}

// New builds a Service.
func New(orch Orchestrator, genes GeneReader, scorer Scorer) *Service {
	return &Service{orch: orch, genes: genes, scorer: scorer}
}

// Trigger begins a run for a single source.
func (s *Service) Trigger(ctx context.Context, source string) (orchestrator.RunHandle, error) {
	return s.orch.Trigger(ctx, source)
}

// TriggerAll begins a run across every active source in dependency order.
func (s *Service) TriggerAll(ctx context.Context) (orchestrator.RunHandle, error) {
	return s.orch.TriggerAll(ctx)
}

// Pause blocks a source's in-flight worker loop between items.
func (s *Service) Pause(ctx context.Context, source string) error {
	return s.orch.Pause(ctx, source)
}

// Resume releases a paused source's worker loop.
func (s *Service) Resume(ctx context.Context, source string) error {
	return s.orch.Resume(ctx, source)
}

// Cancel requests cooperative cancellation of a source's active run.
func (s *Service) Cancel(source string) error {
	return s.orch.Cancel(source)
}

// Status returns a snapshot of every Source Progress Row.
func (s *Service) Status() []progress.SourceProgress {
	return s.orch.Status()
}

// Subscribe registers an event-bus subscription.
func (s *Service) Subscribe() (id string, events <-chan progress.Event, unsubscribe func()) {
	return s.orch.Subscribe()
}

// RunStatus returns the current state of a run started by Trigger/TriggerAll.
func (s *Service) RunStatus(runID string) (orchestrator.Run, bool) {
	return s.orch.RunStatus(runID)
}

// GeneView is the data-surface shape returned by GetGene/ListGenes: the
// canonical gene plus its current curation and score, when available.
type GeneView struct {
	Gene      evidence.Gene
	Curation  *evidence.CurationRow
	Score     *scoring.ScoreResult
}

// GetGene returns one gene by surrogate ID, with curation and score
// attached when present.
func (s *Service) GetGene(ctx context.Context, id int64) (GeneView, error) {
	gene, err := s.genes.GetGene(ctx, id)
	if err != nil {
		return GeneView{}, err
	}
	return s.buildView(ctx, gene), nil
}

// GetGeneBySymbol returns one gene by its current approved symbol.
func (s *Service) GetGeneBySymbol(ctx context.Context, symbol string) (GeneView, error) {
	gene, err := s.genes.GetGeneBySymbol(ctx, symbol)
	if err != nil {
		return GeneView{}, err
	}
	return s.buildView(ctx, gene), nil
}

// ListGenes returns every known gene with curation and score attached.
func (s *Service) ListGenes(ctx context.Context) ([]GeneView, error) {
	genes, err := s.genes.ListGenes(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]GeneView, len(genes))
	for i, g := range genes {
		views[i] = s.buildView(ctx, g)
	}
	return views, nil
}

func (s *Service) buildView(ctx context.Context, gene evidence.Gene) GeneView {
	view := GeneView{Gene: gene}

	if curation, err := s.genes.CurationFor(ctx, gene.ID); err == nil {
		view.Curation = &curation
	}
	if score, err := s.scorer.ScoreGene(ctx, gene.ID); err == nil {
		view.Score = &score
	}
	return view
}
