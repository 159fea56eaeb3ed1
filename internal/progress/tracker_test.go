package progress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	calls []SourceProgress
}

func (r *recordingPersister) Persist(ctx context.Context, p SourceProgress) error {
	r.calls = append(r.calls, p)
	return nil
}

func TestTracker_Transition_RejectsIllegalEdge(t *testing.T) {
	tr := NewTracker(nil)
	err := tr.Transition(context.Background(), "panelapp", StateRunning)
	require.Error(t, err)

	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StateIdle, invalid.From)
	require.Equal(t, StateRunning, invalid.To)
}

func TestTracker_Transition_HappyPathPersistsAndPublishesSynchronously(t *testing.T) {
	persister := &recordingPersister{}
	tr := NewTracker(persister)

	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateQueued))
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateRunning))

	require.Len(t, persister.calls, 2)
	require.Equal(t, StateRunning, persister.calls[1].State)

	p, ok := tr.Get("panelapp")
	require.True(t, ok)
	require.Equal(t, StateRunning, p.State)
	require.False(t, p.StartedAt.IsZero())
}

func TestTracker_Transition_ToIdleClearsCounters(t *testing.T) {
	tr := NewTracker(nil)
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateQueued))
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateRunning))

	total := 10
	tr.UpdateProgress(context.Background(), "panelapp", ProgressDelta{Total: &total, ProcessedDelta: 3})

	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateIdle))

	p, ok := tr.Get("panelapp")
	require.True(t, ok)
	require.Equal(t, StateIdle, p.State)
	require.Zero(t, p.Processed)
	require.Zero(t, p.Total)
}

func TestTracker_UpdateProgress_UpdatesInMemoryEagerly(t *testing.T) {
	tr := NewTracker(nil)
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateQueued))
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateRunning))

	total := 50
	tr.UpdateProgress(context.Background(), "panelapp", ProgressDelta{Total: &total, ProcessedDelta: 10, AddedDelta: 8})
	tr.UpdateProgress(context.Background(), "panelapp", ProgressDelta{ProcessedDelta: 5, UpdatedDelta: 2})

	p, ok := tr.Get("panelapp")
	require.True(t, ok)
	require.Equal(t, 50, p.Total)
	require.Equal(t, 15, p.Processed)
	require.Equal(t, 8, p.Added)
	require.Equal(t, 2, p.Updated)
}

func TestTracker_UpdateProgress_ImmediatelyAfterTransitionDoesNotRepublish(t *testing.T) {
	persister := &recordingPersister{}
	tr := NewTracker(persister)
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateQueued))
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateRunning))

	calls := len(persister.calls)
	tr.UpdateProgress(context.Background(), "panelapp", ProgressDelta{ProcessedDelta: 1})

	// Persist/publish are throttled; an update immediately following a
	// status_change transition must not trigger another persist.
	require.Len(t, persister.calls, calls)
}

func TestTracker_Subscribe_DeliversInitialStatusSnapshot(t *testing.T) {
	tr := NewTracker(nil)
	require.NoError(t, tr.Transition(context.Background(), "panelapp", StateQueued))

	_, events, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	evt := <-events
	require.Equal(t, EventInitialStatus, evt.Type)
	require.Len(t, evt.Snapshot, 1)
	require.Equal(t, "panelapp", evt.Snapshot[0].Source)
}

func TestTracker_Subscribe_ReceivesStatusChangeEvents(t *testing.T) {
	tr := NewTracker(nil)
	_, events, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	<-events // initial_status

	require.NoError(t, tr.Transition(context.Background(), "hpo", StateQueued))

	evt := <-events
	require.Equal(t, EventStatusChange, evt.Type)
	require.Equal(t, "hpo", evt.Changed.Source)
	require.Equal(t, StateQueued, evt.Changed.State)
}

func TestTracker_Publish_DropsSaturatedSubscriber(t *testing.T) {
	tr := NewTracker(nil)
	_, events, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	<-events // drain initial_status

	// Flood past the bounded queue without ever reading again; the
	// saturated subscriber must be dropped rather than block producers.
	for i := 0; i < DefaultSubscriberQueue+5; i++ {
		require.NoError(t, tr.Transition(context.Background(), "pubtator", StateQueued))
		require.NoError(t, tr.Transition(context.Background(), "pubtator", StateIdle))
	}
}
