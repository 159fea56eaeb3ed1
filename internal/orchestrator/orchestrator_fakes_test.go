package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"geneingest/internal/evidence"
	"geneingest/internal/normalize"
	"geneingest/internal/payload"
	"geneingest/internal/registry"
)

// fakeStore is an in-memory stand-in for *evidence.Store, good enough to
// exercise the Orchestrator without a database.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	genes      []evidence.Gene
	bySymbol   map[string]int64
	evidence   []string
	annotation []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySymbol: make(map[string]int64)}
}

func (s *fakeStore) ListGenes(ctx context.Context) ([]evidence.Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]evidence.Gene, len(s.genes))
	copy(out, s.genes)
	return out, nil
}

func (s *fakeStore) ResolveOrCreate(ctx context.Context, hgncID, symbol string, aliases []string) (evidence.Gene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.bySymbol[symbol]; ok {
		for _, g := range s.genes {
			if g.ID == id {
				return g, nil
			}
		}
	}
	s.nextID++
	g := evidence.Gene{ID: s.nextID, HGNCID: hgncID, Symbol: symbol, Aliases: aliases}
	s.genes = append(s.genes, g)
	s.bySymbol[symbol] = g.ID
	return g, nil
}

func (s *fakeStore) UpsertEvidence(ctx context.Context, geneID int64, source string, incoming payload.Value, classification *string) (evidence.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence = append(s.evidence, fmt.Sprintf("%d:%s", geneID, source))
	return evidence.OutcomeInserted, nil
}

func (s *fakeStore) UpsertAnnotation(ctx context.Context, geneID int64, source string, incoming payload.Value) (evidence.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotation = append(s.annotation, fmt.Sprintf("%d:%s", geneID, source))
	return evidence.OutcomeInserted, nil
}

// fakeNormalizer resolves every input to a gene by treating the input as
// both the HGNC ID and the symbol.
type fakeNormalizer struct {
	prepareErr error
	resolveErr error
}

func (n *fakeNormalizer) Prepare(ctx context.Context) error { return n.prepareErr }

func (n *fakeNormalizer) Resolve(ctx context.Context, store normalize.GeneStore, input string) (evidence.Gene, error) {
	if n.resolveErr != nil {
		return evidence.Gene{}, n.resolveErr
	}
	return store.ResolveOrCreate(ctx, "hgnc:"+input, input, nil)
}

// fakeScorer counts RefreshMaterialized calls.
type fakeScorer struct {
	mu        sync.Mutex
	refreshed int
	err       error
}

func (s *fakeScorer) RefreshMaterialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed++
	return s.err
}

// fakeDriver is a registry.Driver good enough to exercise the bulk and
// per-gene dispatch paths.
type fakeDriver struct {
	name      string
	bulk      bool
	perGene   bool
	fetchErr  error
	prepareErr error
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Prepare(ctx context.Context) (registry.PrepareReport, error) {
	return registry.PrepareReport{}, d.prepareErr
}

func (d *fakeDriver) FetchOne(ctx context.Context, gene registry.Gene) (payload.Value, error) {
	if d.fetchErr != nil {
		return payload.Value{}, d.fetchErr
	}
	return payload.FromString("ok"), nil
}

func (d *fakeDriver) FetchBatch(ctx context.Context, genes []registry.Gene, sink registry.Sink) (registry.BatchReport, error) {
	report := registry.BatchReport{}
	for _, g := range genes {
		if d.fetchErr != nil {
			sink(g, payload.Value{}, d.fetchErr)
			report.Failed++
			continue
		}
		sink(g, payload.FromString("ok"), nil)
		report.Fetched++
	}
	return report, nil
}

func (d *fakeDriver) IsValid(value payload.Value) bool {
	return !value.IsNull()
}
