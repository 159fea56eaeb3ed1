package registry

import (
	"context"
	"testing"

	"geneingest/internal/payload"
	"geneingest/pkg/apperror"
	"geneingest/pkg/config"
)

type stubDriver struct {
	name    string
	healthy bool
}

func (s *stubDriver) Name() string { return s.name }

func (s *stubDriver) Prepare(ctx context.Context) (PrepareReport, error) {
	return PrepareReport{ItemsLoaded: 1}, nil
}

func (s *stubDriver) FetchOne(ctx context.Context, gene Gene) (payload.Value, error) {
	return payload.FromObject(map[string]payload.Value{
		"symbol": payload.FromString(gene.Symbol),
	}), nil
}

func (s *stubDriver) FetchBatch(ctx context.Context, genes []Gene, sink Sink) (BatchReport, error) {
	report := BatchReport{}
	for _, g := range genes {
		v, err := s.FetchOne(ctx, g)
		if err != nil {
			report.Failed++
		} else {
			report.Fetched++
		}
		sink(g, v, err)
	}
	return report, nil
}

func (s *stubDriver) IsValid(v payload.Value) bool { return !v.IsNull() }

func (s *stubDriver) HealthCheck(ctx context.Context) error {
	if !s.healthy {
		return apperror.ErrSourceUnavailable
	}
	return nil
}

func testSources() []config.SourceConfig {
	return []config.SourceConfig{
		{Name: "panelapp", Category: config.CategoryExternalAPI, Track: config.TrackA},
		{Name: "hgnc", Category: config.CategoryBulkFile, Track: config.TrackNone},
		{Name: "clinvar", Category: config.CategoryBulkFile, Track: config.TrackNone, Retired: true},
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New(testSources())

	d := &stubDriver{name: "panelapp", healthy: true}
	if err := r.RegisterDriver(d); err != nil {
		t.Fatalf("RegisterDriver() error = %v", err)
	}

	got, err := r.Driver("panelapp")
	if err != nil {
		t.Fatalf("Driver() error = %v", err)
	}
	if got.Name() != "panelapp" {
		t.Errorf("Driver().Name() = %q, want panelapp", got.Name())
	}

	src, ok := r.Source("panelapp")
	if !ok || src.Category != config.CategoryExternalAPI {
		t.Errorf("Source() = %+v, %v, want CategoryExternalAPI", src, ok)
	}
}

func TestRegistry_RegisterDriver_UnknownSource(t *testing.T) {
	r := New(testSources())

	err := r.RegisterDriver(&stubDriver{name: "not-configured"})
	if err == nil {
		t.Fatal("expected error registering a driver with no config entry")
	}
	if !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("expected CodeNotFound, got %v", err)
	}
}

func TestRegistry_Driver_NotRegistered(t *testing.T) {
	r := New(testSources())

	_, err := r.Driver("hgnc")
	if err == nil {
		t.Fatal("expected error for a configured but undriven source")
	}
	if !apperror.Is(err, apperror.CodeNotFound) {
		t.Errorf("expected CodeNotFound, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := New(testSources())
	names := r.Names()
	if len(names) != 3 {
		t.Fatalf("Names() = %v, want 3 entries", names)
	}
	if names[0] != "panelapp" {
		t.Errorf("Names()[0] = %q, want panelapp (declaration order preserved)", names[0])
	}
}

func TestRegistry_Active_ExcludesRetiredAndUndriven(t *testing.T) {
	r := New(testSources())
	r.RegisterDriver(&stubDriver{name: "panelapp", healthy: true})
	r.RegisterDriver(&stubDriver{name: "hgnc", healthy: true})
	r.RegisterDriver(&stubDriver{name: "clinvar", healthy: true})

	active := r.Active()
	if len(active) != 2 {
		t.Fatalf("Active() = %v, want 2 (clinvar is retired)", active)
	}
	for _, name := range active {
		if name == "clinvar" {
			t.Error("retired source clinvar should not be active")
		}
	}
}

func TestRegistry_Active_RequiresDriver(t *testing.T) {
	r := New(testSources())
	r.RegisterDriver(&stubDriver{name: "panelapp", healthy: true})

	active := r.Active()
	if len(active) != 1 || active[0] != "panelapp" {
		t.Fatalf("Active() = %v, want only panelapp (hgnc has no registered driver)", active)
	}
}

func TestRegistry_ActiveScored_ExcludesTrackNone(t *testing.T) {
	r := New(testSources())
	r.RegisterDriver(&stubDriver{name: "panelapp", healthy: true})
	r.RegisterDriver(&stubDriver{name: "hgnc", healthy: true})

	scored := r.ActiveScored()
	if len(scored) != 1 || scored[0] != "panelapp" {
		t.Fatalf("ActiveScored() = %v, want only panelapp (hgnc is TrackNone)", scored)
	}
}

func TestRegistry_ByCategory(t *testing.T) {
	r := New(testSources())
	r.RegisterDriver(&stubDriver{name: "panelapp", healthy: true})
	r.RegisterDriver(&stubDriver{name: "hgnc", healthy: true})

	bulk := r.ByCategory(config.CategoryBulkFile)
	if len(bulk) != 1 || bulk[0] != "hgnc" {
		t.Fatalf("ByCategory(bulk-file) = %v, want [hgnc]", bulk)
	}

	api := r.ByCategory(config.CategoryExternalAPI)
	if len(api) != 1 || api[0] != "panelapp" {
		t.Fatalf("ByCategory(external-api) = %v, want [panelapp]", api)
	}
}

func TestRegistry_DuplicateConfigEntryIgnored(t *testing.T) {
	sources := append(testSources(), config.SourceConfig{Name: "panelapp", Category: config.CategoryScrapedPanel})
	r := New(sources)

	if len(r.Names()) != 3 {
		t.Fatalf("expected duplicate source name to be ignored, got %d entries", len(r.Names()))
	}
	src, _ := r.Source("panelapp")
	if src.Category != config.CategoryExternalAPI {
		t.Errorf("first declaration should win, got category %q", src.Category)
	}
}

func TestDriver_FetchBatch_UsesSink(t *testing.T) {
	d := &stubDriver{name: "panelapp", healthy: true}
	genes := []Gene{{Symbol: "PKD1"}, {Symbol: "NPHS1"}}

	var seen []string
	report, err := d.FetchBatch(context.Background(), genes, func(gene Gene, value payload.Value, err error) {
		seen = append(seen, gene.Symbol)
	})
	if err != nil {
		t.Fatalf("FetchBatch() error = %v", err)
	}
	if report.Fetched != 2 {
		t.Errorf("report.Fetched = %d, want 2", report.Fetched)
	}
	if len(seen) != 2 {
		t.Errorf("sink called %d times, want 2", len(seen))
	}
}

func TestHealthChecker(t *testing.T) {
	var _ HealthChecker = (*stubDriver)(nil)

	unhealthy := &stubDriver{name: "panelapp", healthy: false}
	if err := unhealthy.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck to report unhealthy driver")
	}
}
