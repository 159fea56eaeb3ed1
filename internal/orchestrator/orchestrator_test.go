package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geneingest/internal/progress"
	"geneingest/internal/registry"
	"geneingest/pkg/config"
)

func testSources() []config.SourceConfig {
	return []config.SourceConfig{
		{Name: sourceGeneNormalization, Category: config.CategoryInternalProc, Track: config.TrackNone},
		{Name: "panelapp", SupportsPerGene: true, RateLimitPerSec: 5, Track: config.TrackA},
		{Name: "hpo", SupportsBulk: true, Track: config.TrackA},
		{Name: sourceEvidenceAggregation, Category: config.CategoryInternalProc, Track: config.TrackNone},
	}
}

func buildOrchestrator(t *testing.T) (*Orchestrator, *fakeStore, *fakeScorer) {
	t.Helper()
	reg := registry.New(testSources())
	require.NoError(t, reg.RegisterDriver(&fakeDriver{name: "panelapp", perGene: true}))
	require.NoError(t, reg.RegisterDriver(&fakeDriver{name: "hpo", bulk: true}))

	tracker := progress.NewTracker(nil)
	store := newFakeStore()
	norm := &fakeNormalizer{}
	scorer := &fakeScorer{}

	cfg := config.OrchestratorConfig{ParallelSources: 2, MinWorkersPerRun: 2, ErrorRateThreshold: 0.5, ErrorRateFloor: 10}
	orch := New(cfg, reg, tracker, norm, store, scorer, nil, []string{"PKD1", "PKD2"})
	return orch, store, scorer
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish in time")
	}
}

func TestOrchestrator_TriggerAll_RunsFullDependencyOrder(t *testing.T) {
	orch, store, scorer := buildOrchestrator(t)

	handle, err := orch.TriggerAll(context.Background())
	require.NoError(t, err)
	waitDone(t, handle.Done)

	run, ok := orch.RunStatus(handle.ID)
	require.True(t, ok)
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Equal(t, []string{sourceGeneNormalization, "panelapp", "hpo", sourceEvidenceAggregation}, run.Sources)

	require.Len(t, store.genes, 2)
	require.Equal(t, 1, scorer.refreshed)
}

func TestOrchestrator_Trigger_UnknownSourceFails(t *testing.T) {
	orch, _, _ := buildOrchestrator(t)
	_, err := orch.Trigger(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestOrchestrator_Trigger_SingleDriverSourceCompletes(t *testing.T) {
	orch, store, _ := buildOrchestrator(t)

	// Seed a gene so the driver source has something to fetch.
	_, err := orch.norm.Resolve(context.Background(), store, "PKD1")
	require.NoError(t, err)

	handle, err := orch.Trigger(context.Background(), "hpo")
	require.NoError(t, err)
	waitDone(t, handle.Done)

	run, ok := orch.RunStatus(handle.ID)
	require.True(t, ok)
	require.Equal(t, RunStatusCompleted, run.Status)
}

func TestOrchestrator_Cancel_UnknownSourceReturnsError(t *testing.T) {
	orch, _, _ := buildOrchestrator(t)
	require.Error(t, orch.Cancel("panelapp"))
}

func TestOrchestrator_Status_ReflectsTrackerSnapshot(t *testing.T) {
	orch, _, _ := buildOrchestrator(t)
	handle, err := orch.TriggerAll(context.Background())
	require.NoError(t, err)
	waitDone(t, handle.Done)

	rows := orch.Status()
	require.NotEmpty(t, rows)
}

func TestOrchestrator_Subscribe_ReceivesInitialSnapshot(t *testing.T) {
	orch, _, _ := buildOrchestrator(t)
	_, events, unsubscribe := orch.Subscribe()
	defer unsubscribe()

	select {
	case evt := <-events:
		require.Equal(t, progress.EventInitialStatus, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("expected initial status event")
	}
}
