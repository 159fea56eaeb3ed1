package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Источник
	AttrSourceName     = "source.name"
	AttrSourceCategory = "source.category"
	AttrSourceTrack    = "source.track"

	// Fetch
	AttrFetchMode    = "fetch.mode"
	AttrFetchRetries = "fetch.retries"
	AttrFetchCached  = "fetch.cached"

	// Прогон
	AttrRunID          = "run.id"
	AttrGenesRequested = "run.genes_requested"
	AttrGenesCompleted = "run.genes_completed"

	// Оценка
	AttrScoringTrack        = "scoring.track"
	AttrEvidenceTier        = "scoring.evidence_tier"
	AttrPercentageScore     = "scoring.percentage_score"
	AttrActiveSourcesCount  = "scoring.active_sources_count"
)

// SourceAttributes returns attributes describing a fetch against one source.
func SourceAttributes(name, category, track string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSourceName, name),
		attribute.String(AttrSourceCategory, category),
		attribute.String(AttrSourceTrack, track),
	}
}

// FetchAttributes returns attributes describing the outcome of a fetch call.
func FetchAttributes(mode string, retries int, cached bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrFetchMode, mode),
		attribute.Int(AttrFetchRetries, retries),
		attribute.Bool(AttrFetchCached, cached),
	}
}

// RunAttributes returns attributes describing an orchestrator run's progress.
func RunAttributes(runID string, requested, completed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrGenesRequested, requested),
		attribute.Int(AttrGenesCompleted, completed),
	}
}

// ScoringAttributes returns attributes describing one gene's scoring result.
func ScoringAttributes(track, tier string, percentage float64, activeSources int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrScoringTrack, track),
		attribute.String(AttrEvidenceTier, tier),
		attribute.Float64(AttrPercentageScore, percentage),
		attribute.Int(AttrActiveSourcesCount, activeSources),
	}
}
