package orchestrator

import (
	"context"
	"sync"

	"geneingest/pkg/apperror"
)

// sourceGate holds the per-source cancellation and pause state. Pause
// blocks a running source's worker loop between items; it never kills
// in-flight HTTP calls, matching the cooperative-cancellation contract.
type sourceGate struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	paused chan struct{} // non-nil while paused; closed by resume to release waiters
}

type gates struct {
	mu sync.Mutex
	m  map[string]*sourceGate
}

func newGates() *gates {
	return &gates{m: make(map[string]*sourceGate)}
}

func (g *gates) register(source string, cancel context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.m[source] = &sourceGate{cancel: cancel}
}

func (g *gates) unregister(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.m, source)
}

func (g *gates) get(source string) (*sourceGate, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sg, ok := g.m[source]
	return sg, ok
}

// cancelSource requests cancellation of source's active run, if any.
func (g *gates) cancelSource(source string) error {
	sg, ok := g.get(source)
	if !ok {
		return apperror.New(apperror.CodeNotFound, "source has no active run").WithDetails("source", source)
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.cancel()
	return nil
}

// pause blocks source's worker loop until resume is called.
func (g *gates) pause(source string) error {
	sg, ok := g.get(source)
	if !ok {
		return apperror.New(apperror.CodeNotFound, "source has no active run").WithDetails("source", source)
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if sg.paused == nil {
		sg.paused = make(chan struct{})
	}
	return nil
}

// resume releases any worker loop blocked on source's pause gate.
func (g *gates) resume(source string) error {
	sg, ok := g.get(source)
	if !ok {
		return apperror.New(apperror.CodeNotFound, "source has no active run").WithDetails("source", source)
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if sg.paused != nil {
		close(sg.paused)
		sg.paused = nil
	}
	return nil
}

// waitIfPaused blocks until source is resumed or ctx is cancelled.
func (g *gates) waitIfPaused(ctx context.Context, source string) {
	sg, ok := g.get(source)
	if !ok {
		return
	}
	sg.mu.Lock()
	ch := sg.paused
	sg.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}
