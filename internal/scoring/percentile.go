package scoring

import "sort"

// percentRank computes PERCENT_RANK(value) over the full population of
// values: the count of population values strictly less than value,
// divided by n-1, matching SQL's percent_rank() window function. A
// single-element population ranks at 0.
func percentRank(population []float64, value float64) float64 {
	n := len(population)
	if n <= 1 {
		return 0
	}

	sorted := append([]float64(nil), population...)
	sort.Float64s(sorted)

	less := sort.SearchFloat64s(sorted, value)
	return float64(less) / float64(n-1)
}
