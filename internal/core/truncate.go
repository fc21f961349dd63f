package core

import (
	"math"
	"strings"
)

// contextWeights returns the share of the token budget each non-empty block gets, keyed by block count.
// The most recent query comes first and gets the larger share. Counts other than one or two
// fall back to a single full weight on the first block.
func contextWeights(count int) []float64 {
	switch count {
	case 0:
		return nil
	case 1:
		return []float64{1}
	case 2:
		return []float64{0.7, 0.3}
	default:
		return []float64{1}
	}
}

// TruncateContext cuts fused blocks to a token budget and joins them with line breaks.
func TruncateContext(blocks []string, budget int, slicer Slicer) string {
	nonEmpty := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}

	weights := contextWeights(len(nonEmpty))
	parts := make([]string, 0, len(weights))
	for i, w := range weights {
		limit := int(math.Floor(float64(budget) * w))
		if part := slicer.Slice(nonEmpty[i], limit); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}
