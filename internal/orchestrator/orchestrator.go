package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"geneingest/internal/evidence"
	"geneingest/internal/normalize"
	"geneingest/internal/payload"
	"geneingest/internal/progress"
	"geneingest/internal/registry"
	"geneingest/pkg/apperror"
	"geneingest/pkg/audit"
	"geneingest/pkg/config"
)

// EvidenceStore is the subset of *evidence.Store the Orchestrator needs. It
// also satisfies normalize.GeneStore so the same value can be handed to the
// Normalizer.
type EvidenceStore interface {
	ListGenes(ctx context.Context) ([]evidence.Gene, error)
	ResolveOrCreate(ctx context.Context, hgncID, symbol string, aliases []string) (evidence.Gene, error)
	UpsertEvidence(ctx context.Context, geneID int64, source string, incoming payload.Value, classification *string) (evidence.Outcome, error)
	UpsertAnnotation(ctx context.Context, geneID int64, source string, incoming payload.Value) (evidence.Outcome, error)
}

// GeneResolver is the subset of *normalize.Normalizer the Orchestrator needs.
type GeneResolver interface {
	Prepare(ctx context.Context) error
	Resolve(ctx context.Context, store normalize.GeneStore, input string) (evidence.Gene, error)
}

// Scorer is the subset of *scoring.Engine the Orchestrator needs for the
// evidence_aggregation end-of-run hook.
type Scorer interface {
	RefreshMaterialized(ctx context.Context) error
}

// Orchestrator composes the registry, normalizer, evidence store, scoring
// engine, and progress tracker into runs.
type Orchestrator struct {
	cfg     config.OrchestratorConfig
	reg     *registry.Registry
	tracker *progress.Tracker
	norm    GeneResolver
	store   EvidenceStore
	scorer  Scorer
	auditor audit.Logger
	panel   []string

	gates *gates

	mu   sync.Mutex
	runs map[string]*Run
}

// New builds an Orchestrator. panel is the set of gene inputs (symbols,
// aliases, or HGNC IDs) the gene_normalization step resolves every run.
func New(cfg config.OrchestratorConfig, reg *registry.Registry, tracker *progress.Tracker,
	norm GeneResolver, store EvidenceStore, scorer Scorer, auditor audit.Logger, panel []string) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		reg:     reg,
		tracker: tracker,
		norm:    norm,
		store:   store,
		scorer:  scorer,
		auditor: auditor,
		panel:   panel,
		gates:   newGates(),
		runs:    make(map[string]*Run),
	}
}

// Trigger begins or enqueues a run for a single source and returns
// immediately.
func (o *Orchestrator) Trigger(ctx context.Context, source string) (RunHandle, error) {
	if _, ok := o.reg.Source(source); !ok {
		return RunHandle{}, apperror.New(apperror.CodeNotFound, "unknown source").WithDetails("source", source)
	}
	return o.startRun(ctx, []string{source}, "api")
}

// TriggerAll begins a run across every active source in dependency order:
// gene_normalization first, evidence_aggregation last.
func (o *Orchestrator) TriggerAll(ctx context.Context) (RunHandle, error) {
	_, hasNorm := o.reg.Source(sourceGeneNormalization)
	_, hasAgg := o.reg.Source(sourceEvidenceAggregation)
	order := orderForAll(hasNorm, hasAgg, o.reg.Active())
	return o.startRun(ctx, order, "schedule")
}

func (o *Orchestrator) startRun(ctx context.Context, sources []string, triggeredBy string) (RunHandle, error) {
	id := uuid.NewString()
	run := &Run{
		ID:          id,
		Sources:     sources,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now(),
		Status:      RunStatusRunning,
	}
	done := make(chan struct{})

	o.mu.Lock()
	o.runs[id] = run
	o.mu.Unlock()

	if o.auditor != nil {
		_ = o.auditor.Log(ctx, audit.NewEntry().
			Action(audit.ActionTrigger).
			Outcome(audit.OutcomeSuccess).
			Meta("run_id", id).
			Meta("sources", sources).
			Build())
	}

	go o.execute(context.Background(), run, done)

	return RunHandle{ID: id, Done: done}, nil
}

// Pause blocks source's in-flight worker loop between items.
func (o *Orchestrator) Pause(ctx context.Context, source string) error {
	if err := o.gates.pause(source); err != nil {
		return err
	}
	return o.tracker.Transition(ctx, source, progress.StatePaused)
}

// Resume releases a paused source's worker loop.
func (o *Orchestrator) Resume(ctx context.Context, source string) error {
	if err := o.gates.resume(source); err != nil {
		return err
	}
	return o.tracker.Transition(ctx, source, progress.StateRunning)
}

// Cancel requests cooperative cancellation of source's active run. In-flight
// HTTP calls are allowed to finish or time out; no forced kill.
func (o *Orchestrator) Cancel(source string) error {
	return o.gates.cancelSource(source)
}

// Status returns a snapshot of every Source Progress Row.
func (o *Orchestrator) Status() []progress.SourceProgress {
	return o.tracker.Snapshot()
}

// Subscribe registers an event-bus subscription.
func (o *Orchestrator) Subscribe() (id string, events <-chan progress.Event, unsubscribe func()) {
	return o.tracker.Subscribe()
}

// RunStatus returns the current state of a run started by Trigger/TriggerAll.
func (o *Orchestrator) RunStatus(runID string) (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[runID]
	if !ok {
		return Run{}, false
	}
	return *r, true
}
