package metrics

import (
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInitMetrics(t *testing.T) {
	// Create fresh registry to avoid conflicts
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "service")

	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	if m.FetchRequestsTotal == nil {
		t.Error("FetchRequestsTotal should not be nil")
	}
	if m.FetchDuration == nil {
		t.Error("FetchDuration should not be nil")
	}
	if m.MergeOperations == nil {
		t.Error("MergeOperations should not be nil")
	}
	if m.ScoringRunDuration == nil {
		t.Error("ScoringRunDuration should not be nil")
	}
}

func TestGet(t *testing.T) {
	// Reset default metrics
	defaultMetrics = nil

	m := Get()
	if m == nil {
		t.Error("Get() should not return nil")
	}

	// Second call should return same instance
	m2 := Get()
	if m2 != m {
		t.Error("Get() should return same instance")
	}
}

func TestRecordFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "fetch")

	// Should not panic
	m.RecordFetch("panelapp", "ok", 100*time.Millisecond)
	m.RecordFetch("panelapp", "error", 50*time.Millisecond)
	m.RecordFetchRetry("panelapp", "timeout")
}

func TestRecordMerge(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "merge")

	m.RecordMerge("hpo", "updated")
	m.RecordMerge("clingen", "inserted")
	m.SetEvidenceRecords("hpo", 512)
}

func TestRecordScoringRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "scoring")

	m.RecordScoringRun("A", 500*time.Millisecond)
	m.RecordScoringRun("C", 1*time.Second)
	m.RecordSourceItem("gencc", "scored")
}

func TestRecordCacheOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "cache")

	m.RecordCacheOp("genes", "l1", "hit", 0.92)
	m.RecordCacheOp("genes", "l2", "miss", 0.5)
}

func TestRecordSubscriberDrop(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "progress")

	m.RecordSubscriberDrop("run-1")
	m.RecordSubscriberDrop("run-1")
}

func TestSetServiceInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := InitMetrics("test", "info")

	m.SetServiceInfo("1.0.0", "production")
}

func TestRuntimeCollector(t *testing.T) {
	collector := NewRuntimeCollector("test", "runtime")

	// Test Describe
	descCh := make(chan *prometheus.Desc, 10)
	collector.Describe(descCh)
	close(descCh)

	count := 0
	for range descCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 descriptors, got %d", count)
	}

	// Test Collect
	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	count = 0
	for range metricCh {
		count++
	}
	if count < 5 {
		t.Errorf("expected at least 5 metrics, got %d", count)
	}
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler() should not return nil")
	}
}

func TestRuntimeCollector_GCPause(t *testing.T) {
	// Force a GC to ensure we have GC data
	runtime.GC()

	collector := NewRuntimeCollector("test", "gc")
	metricCh := make(chan prometheus.Metric, 10)
	collector.Collect(metricCh)
	close(metricCh)

	// Should have collected GC pause metric
	found := false
	for range metricCh {
		found = true
	}
	if !found {
		t.Error("should have collected at least one metric")
	}
}
