package metrics

import (
	"math"
	"sort"
)

// TailConfidence is the confidence level of the reported VaR / CVaR
const TailConfidence = 0.95

// historicalVaR is the (1-confidence) percentile of daily returns by
// historical simulation. Both values are losses as positive fractions;
// 0 when the tail holds no loss.
func historicalVaR(returns []float64, confidence float64) (valueAtRisk, expectedShortfall float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	// 오름차순: 손실이 앞에
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	// CVaR = VaR 인덱스까지 tail 평균
	var sum float64
	for _, r := range sorted[:idx+1] {
		sum += r
	}
	tail := sum / float64(idx+1)

	return math.Max(-sorted[idx], 0), math.Max(-tail, 0)
}
