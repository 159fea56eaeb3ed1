package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"geneingest/pkg/telemetry"
)

// DefaultSubscriberQueue bounds a subscriber's event channel; a subscriber
// that falls this far behind is dropped rather than applying back-pressure
// to producers.
const DefaultSubscriberQueue = 64

const (
	persistInterval = 5 * time.Second
	publishInterval = 1 * time.Second
)

// Persister writes a SourceProgress row to durable storage.
type Persister interface {
	Persist(ctx context.Context, p SourceProgress) error
}

type subscriber struct {
	id string
	ch chan Event
}

// Tracker is the single-writer Progress Tracker & Event Bus for every
// registered source. The in-memory state is authoritative for reads;
// persistence and publication are throttled independently.
type Tracker struct {
	persister Persister

	mu          sync.Mutex
	state       map[string]SourceProgress
	runStart    map[string]time.Time
	lastPersist map[string]time.Time
	lastPublish map[string]time.Time
	dirty       map[string]SourceProgress // accumulated since last publish

	subMu sync.RWMutex
	subs  map[string]*subscriber
}

// NewTracker builds a Tracker. persister may be nil to disable
// persistence (used in tests and by callers that only need the bus).
func NewTracker(persister Persister) *Tracker {
	return &Tracker{
		persister:   persister,
		state:       make(map[string]SourceProgress),
		runStart:    make(map[string]time.Time),
		lastPersist: make(map[string]time.Time),
		lastPublish: make(map[string]time.Time),
		dirty:       make(map[string]SourceProgress),
		subs:        make(map[string]*subscriber),
	}
}

// Snapshot returns the current in-memory state for every tracked source.
func (t *Tracker) Snapshot() []SourceProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SourceProgress, 0, len(t.state))
	for _, p := range t.state {
		out = append(out, p)
	}
	return out
}

// Get returns one source's current in-memory state.
func (t *Tracker) Get(source string) (SourceProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.state[source]
	return p, ok
}

// Transition drives a source's state machine. Every transition persists
// and publishes synchronously: only in-run progress updates are throttled.
func (t *Tracker) Transition(ctx context.Context, source string, to State) error {
	ctx, span := telemetry.StartSpan(ctx, "progress.Tracker.Transition")
	defer span.End()

	t.mu.Lock()
	current := t.state[source]
	if current.Source == "" {
		current = SourceProgress{Source: source, State: StateIdle}
	}
	if !isValidTransition(current.State, to) {
		t.mu.Unlock()
		return &ErrInvalidTransition{Source: source, From: current.State, To: to}
	}

	now := time.Now()
	current.State = to
	current.UpdatedAt = now
	if to == StateRunning {
		if _, started := t.runStart[source]; !started {
			t.runStart[source] = now
		}
		current.StartedAt = t.runStart[source]
	}
	if to == StateIdle {
		delete(t.runStart, source)
		current = SourceProgress{Source: source, State: StateIdle, UpdatedAt: now}
	}
	t.state[source] = current
	t.lastPersist[source] = now
	t.lastPublish[source] = now
	delete(t.dirty, source)
	t.mu.Unlock()

	if t.persister != nil {
		_ = t.persister.Persist(ctx, current)
	}
	t.publish(Event{Type: EventStatusChange, Changed: current})

	return nil
}

// ProgressDelta is an incremental update to a running source's counters.
type ProgressDelta struct {
	Total            *int
	ProcessedDelta   int
	AddedDelta       int
	UpdatedDelta     int
	FailedDelta      int
	CurrentOperation string
	LastError        string
}

// UpdateProgress applies delta to source's in-memory state eagerly, then
// persists (at most every 5s) and publishes a batched progress_update (at
// most every 1s), per the component's throttling contract.
func (t *Tracker) UpdateProgress(ctx context.Context, source string, delta ProgressDelta) {
	ctx, span := telemetry.StartSpan(ctx, "progress.Tracker.UpdateProgress")
	defer span.End()

	t.mu.Lock()
	current := t.state[source]
	if delta.Total != nil {
		current.Total = *delta.Total
	}
	current.Processed += delta.ProcessedDelta
	current.Added += delta.AddedDelta
	current.Updated += delta.UpdatedDelta
	current.Failed += delta.FailedDelta
	if delta.CurrentOperation != "" {
		current.CurrentOperation = delta.CurrentOperation
	}
	if delta.LastError != "" {
		current.LastError = delta.LastError
	}
	current.UpdatedAt = time.Now()
	t.state[source] = current
	t.dirty[source] = current

	now := time.Now()
	shouldPersist := t.persister != nil && now.Sub(t.lastPersist[source]) >= persistInterval
	if shouldPersist {
		t.lastPersist[source] = now
	}

	shouldPublish := now.Sub(t.lastPublish[source]) >= publishInterval
	var batch []SourceProgress
	if shouldPublish {
		t.lastPublish[source] = now
		for _, p := range t.dirty {
			batch = append(batch, p)
		}
		t.dirty = make(map[string]SourceProgress)
	}
	t.mu.Unlock()

	if shouldPersist {
		_ = t.persister.Persist(ctx, current)
	}
	if shouldPublish && len(batch) > 0 {
		t.publish(Event{Type: EventProgressUpdate, Snapshot: batch})
	}
}

// Subscribe registers a new subscriber, assigns it a uuid, and immediately
// delivers an initial_status event carrying the full state vector. The
// returned unsubscribe func removes and closes the subscriber's channel.
func (t *Tracker) Subscribe() (id string, events <-chan Event, unsubscribe func()) {
	id = uuid.NewString()
	ch := make(chan Event, DefaultSubscriberQueue)

	t.subMu.Lock()
	t.subs[id] = &subscriber{id: id, ch: ch}
	t.subMu.Unlock()

	ch <- Event{Type: EventInitialStatus, Snapshot: t.Snapshot()}

	return id, ch, func() { t.unsubscribe(id) }
}

func (t *Tracker) unsubscribe(id string) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if sub, ok := t.subs[id]; ok {
		close(sub.ch)
		delete(t.subs, id)
	}
}

// publish fans event out to every subscriber without blocking; a
// subscriber whose queue is full is dropped and must re-subscribe.
func (t *Tracker) publish(event Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	for id, sub := range t.subs {
		select {
		case sub.ch <- event:
		default:
			close(sub.ch)
			delete(t.subs, id)
		}
	}
}
