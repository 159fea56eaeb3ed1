package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"geneingest/internal/evidence"
	"geneingest/internal/payload"
	"geneingest/internal/progress"
	"geneingest/internal/registry"
	"geneingest/pkg/apperror"
	"geneingest/pkg/audit"
	"geneingest/pkg/config"
	"geneingest/pkg/telemetry"
)

// execute drives one run to completion: gene_normalization (if present) runs
// first and serially, the remaining active sources run concurrently bounded
// by ParallelSources, and evidence_aggregation (if present) runs last. One
// source's failure never aborts its siblings.
func (o *Orchestrator) execute(ctx context.Context, run *Run, done chan struct{}) {
	defer close(done)

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.execute")
	defer span.End()

	var stage1, stage2, stage3 []string
	for _, name := range run.Sources {
		switch name {
		case sourceGeneNormalization:
			stage1 = append(stage1, name)
		case sourceEvidenceAggregation:
			stage3 = append(stage3, name)
		default:
			stage2 = append(stage2, name)
		}
	}

	results := make(map[string]error, len(run.Sources))
	var resultsMu sync.Mutex
	recordResult := func(name string, err error) {
		resultsMu.Lock()
		results[name] = err
		resultsMu.Unlock()
	}

	for _, name := range stage1 {
		recordResult(name, o.runGated(ctx, name))
	}

	if len(stage2) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		limit := o.cfg.ParallelSources
		if limit <= 0 {
			limit = 4
		}
		g.SetLimit(limit)
		for _, name := range stage2 {
			name := name
			g.Go(func() error {
				recordResult(name, o.runGated(gctx, name))
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, name := range stage3 {
		recordResult(name, o.runGated(ctx, name))
	}

	completed := 0
	for _, err := range results {
		if err == nil {
			completed++
		}
	}
	span.SetAttributes(telemetry.RunAttributes(run.ID, len(run.Sources), completed)...)

	o.finishRun(run, results)
}

func (o *Orchestrator) runGated(ctx context.Context, name string) error {
	sourceCtx, cancel := context.WithCancel(ctx)
	o.gates.register(name, cancel)
	defer func() {
		o.gates.unregister(name)
		cancel()
	}()
	return o.runSource(sourceCtx, name)
}

func (o *Orchestrator) runSource(ctx context.Context, name string) error {
	switch name {
	case sourceGeneNormalization:
		return o.runGeneNormalization(ctx)
	case sourceEvidenceAggregation:
		return o.runEvidenceAggregation(ctx)
	default:
		return o.runDriverSource(ctx, name)
	}
}

func (o *Orchestrator) runGeneNormalization(ctx context.Context) error {
	name := sourceGeneNormalization
	if err := o.tracker.Transition(ctx, name, progress.StateQueued); err != nil {
		return err
	}
	if err := o.tracker.Transition(ctx, name, progress.StateRunning); err != nil {
		return err
	}

	if err := o.norm.Prepare(ctx); err != nil {
		o.failSource(ctx, name, err)
		return fmt.Errorf("%s: prepare: %w", name, err)
	}

	total := len(o.panel)
	o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{Total: &total})

	var failed int
	for _, input := range o.panel {
		o.gates.waitIfPaused(ctx, name)
		if ctx.Err() != nil {
			return o.cancelSource(ctx, name)
		}

		if _, err := o.norm.Resolve(ctx, o.store, input); err != nil {
			failed++
			o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
				ProcessedDelta: 1, FailedDelta: 1, LastError: err.Error(), CurrentOperation: input,
			})
			continue
		}
		o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
			ProcessedDelta: 1, AddedDelta: 1, CurrentOperation: input,
		})
	}

	return o.finishSource(ctx, name, total, failed)
}

func (o *Orchestrator) runEvidenceAggregation(ctx context.Context) error {
	name := sourceEvidenceAggregation
	if err := o.tracker.Transition(ctx, name, progress.StateQueued); err != nil {
		return err
	}
	if err := o.tracker.Transition(ctx, name, progress.StateRunning); err != nil {
		return err
	}

	if err := o.scorer.RefreshMaterialized(ctx); err != nil {
		o.failSource(ctx, name, err)
		return fmt.Errorf("%s: refresh: %w", name, err)
	}

	_ = o.tracker.Transition(ctx, name, progress.StateCompleted)
	return nil
}

func (o *Orchestrator) runDriverSource(ctx context.Context, name string) error {
	cfg, ok := o.reg.Source(name)
	if !ok {
		return apperror.New(apperror.CodeNotFound, "unknown source").WithDetails("source", name)
	}
	driver, err := o.reg.Driver(name)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.runDriverSource")
	defer span.End()
	span.SetAttributes(telemetry.SourceAttributes(cfg.Name, string(cfg.Category), string(cfg.Track))...)

	if err := o.tracker.Transition(ctx, name, progress.StateQueued); err != nil {
		return err
	}
	if err := o.tracker.Transition(ctx, name, progress.StateRunning); err != nil {
		return err
	}

	if _, err := driver.Prepare(ctx); err != nil {
		o.failSource(ctx, name, err)
		return fmt.Errorf("%s: prepare: %w", name, err)
	}

	genes, err := o.store.ListGenes(ctx)
	if err != nil {
		o.failSource(ctx, name, err)
		return fmt.Errorf("%s: list genes: %w", name, err)
	}

	rgenes := make([]registry.Gene, len(genes))
	bySymbol := make(map[string]evidence.Gene, len(genes))
	for i, g := range genes {
		rgenes[i] = registry.Gene{Symbol: g.Symbol, HGNCID: g.HGNCID}
		bySymbol[g.Symbol] = g
	}

	total := len(rgenes)
	o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{Total: &total})

	var processed, failedCount int32
	record := o.makeSink(ctx, name, cfg, bySymbol, &processed, &failedCount)

	switch {
	case cfg.SupportsBulk:
		if _, err := driver.FetchBatch(ctx, rgenes, record); err != nil {
			o.failSource(ctx, name, err)
			return fmt.Errorf("%s: fetch batch: %w", name, err)
		}
	case cfg.SupportsPerGene:
		if err := o.runPerGenePool(ctx, name, driver, rgenes, record); err != nil && !errors.Is(err, context.Canceled) {
			o.failSource(ctx, name, err)
			return fmt.Errorf("%s: fetch pool: %w", name, err)
		}
	}

	if ctx.Err() != nil {
		return o.cancelSource(ctx, name)
	}

	return o.finishSource(ctx, name, total, int(failedCount))
}

func (o *Orchestrator) runPerGenePool(ctx context.Context, name string, driver registry.Driver, genes []registry.Gene, sink registry.Sink) error {
	poolSize := workerPoolSize(o.currentSourceConfig(name), o.cfg)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)

	for _, rg := range genes {
		rg := rg
		g.Go(func() error {
			o.gates.waitIfPaused(gctx, name)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			value, err := driver.FetchOne(gctx, rg)
			sink(rg, value, err)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) currentSourceConfig(name string) config.SourceConfig {
	cfg, _ := o.reg.Source(name)
	return cfg
}

// makeSink builds the registry.Sink every driver result flows through:
// invalid or error results count as failures; otherwise the payload is
// merged into the evidence store (scored sources) or replaced wholesale
// (annotation-only sources).
func (o *Orchestrator) makeSink(ctx context.Context, name string, cfg config.SourceConfig,
	bySymbol map[string]evidence.Gene, processed, failedCount *int32) registry.Sink {

	return func(rg registry.Gene, value payload.Value, fetchErr error) {
		atomic.AddInt32(processed, 1)

		if fetchErr != nil {
			atomic.AddInt32(failedCount, 1)
			o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
				ProcessedDelta: 1, FailedDelta: 1, LastError: fetchErr.Error(), CurrentOperation: rg.Symbol,
			})
			return
		}

		driver, err := o.reg.Driver(name)
		if err == nil && !driver.IsValid(value) {
			atomic.AddInt32(failedCount, 1)
			o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
				ProcessedDelta: 1, FailedDelta: 1, LastError: "invalid payload", CurrentOperation: rg.Symbol,
			})
			return
		}

		gene, ok := bySymbol[rg.Symbol]
		if !ok {
			atomic.AddInt32(failedCount, 1)
			o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
				ProcessedDelta: 1, FailedDelta: 1, LastError: "gene not resolved", CurrentOperation: rg.Symbol,
			})
			return
		}

		outcome, upsertErr := o.upsert(ctx, cfg, gene.ID, value)
		if upsertErr != nil {
			atomic.AddInt32(failedCount, 1)
			o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{
				ProcessedDelta: 1, FailedDelta: 1, LastError: upsertErr.Error(), CurrentOperation: rg.Symbol,
			})
			return
		}

		delta := progress.ProgressDelta{ProcessedDelta: 1, CurrentOperation: rg.Symbol}
		if outcome == evidence.OutcomeInserted {
			delta.AddedDelta = 1
		} else {
			delta.UpdatedDelta = 1
		}
		o.tracker.UpdateProgress(ctx, name, delta)
	}
}

// upsert dispatches to the Evidence Store by scoring track: TrackNone
// sources (gnomAD, GTEx, UniProt, ClinVar) are annotation-only and always
// replaced wholesale; every scored source is merged. classification is
// extracted from the payload's "classification" field by convention for
// classification-based sources.
func (o *Orchestrator) upsert(ctx context.Context, cfg config.SourceConfig, geneID int64, value payload.Value) (evidence.Outcome, error) {
	if cfg.Track == config.TrackNone {
		return o.store.UpsertAnnotation(ctx, geneID, cfg.Name, value)
	}

	var cls *string
	if cfg.ClassificationBased {
		if s, ok := value.Get("classification").String(); ok {
			cls = &s
		}
	}
	return o.store.UpsertEvidence(ctx, geneID, cfg.Name, value, cls)
}

func workerPoolSize(cfg config.SourceConfig, orch config.OrchestratorConfig) int {
	size := int(cfg.RateLimitPerSec)
	min := orch.MinWorkersPerRun
	if min <= 0 {
		min = 2
	}
	if size < min {
		size = min
	}
	return size
}

// finishSource applies the source-level error-rate policy: a source fails
// only if its error rate exceeds ErrorRateThreshold and at least
// ErrorRateFloor items failed.
func (o *Orchestrator) finishSource(ctx context.Context, name string, total, failed int) error {
	if total > 0 && failed >= o.cfg.ErrorRateFloor && float64(failed)/float64(total) > o.cfg.ErrorRateThreshold {
		err := fmt.Errorf("%s: error rate %.2f exceeds threshold", name, float64(failed)/float64(total))
		o.failSource(ctx, name, err)
		return err
	}
	_ = o.tracker.Transition(ctx, name, progress.StateCompleted)
	return nil
}

func (o *Orchestrator) failSource(ctx context.Context, name string, err error) {
	o.tracker.UpdateProgress(ctx, name, progress.ProgressDelta{LastError: err.Error()})
	_ = o.tracker.Transition(ctx, name, progress.StateFailed)
}

func (o *Orchestrator) cancelSource(ctx context.Context, name string) error {
	_ = o.tracker.Transition(ctx, name, progress.StateFailed)
	return apperror.Wrap(ctx.Err(), apperror.CodeCancelled, "source run cancelled").WithDetails("source", name)
}

func (o *Orchestrator) finishRun(run *Run, results map[string]error) {
	var anySuccess, anyFailure bool
	allCancelled := len(results) > 0

	for _, err := range results {
		if err == nil {
			anySuccess = true
			allCancelled = false
			continue
		}
		anyFailure = true
		if !apperror.Is(err, apperror.CodeCancelled) {
			allCancelled = false
		}
		run.LastError = err.Error()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	run.EndedAt = time.Now()
	switch {
	case !anyFailure:
		run.Status = RunStatusCompleted
	case allCancelled:
		run.Status = RunStatusCancelled
	case anySuccess:
		run.Status = RunStatusPartial
	default:
		run.Status = RunStatusFailed
	}

	if o.auditor != nil {
		_ = o.auditor.Log(context.Background(), audit.NewEntry().
			Action(audit.ActionComplete).
			Outcome(statusOutcome(run.Status)).
			Meta("run_id", run.ID).
			Meta("status", string(run.Status)).
			Build())
	}
}

func statusOutcome(status RunStatus) audit.Outcome {
	if status == RunStatusCompleted {
		return audit.OutcomeSuccess
	}
	return audit.OutcomeFailure
}
