package orchestrator

const (
	sourceGeneNormalization = "gene_normalization"
	sourceEvidenceAggregation = "evidence_aggregation"
)

// orderForAll builds the trigger_all execution order: gene_normalization
// first if configured, then every driver-backed active source, then
// evidence_aggregation last if configured. driverSources must already
// exclude the two internal steps.
func orderForAll(hasNormalization, hasAggregation bool, driverSources []string) []string {
	var order []string
	if hasNormalization {
		order = append(order, sourceGeneNormalization)
	}
	order = append(order, driverSources...)
	if hasAggregation {
		order = append(order, sourceEvidenceAggregation)
	}
	return order
}
