package utils

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 - cos(v1, v2), the value pgvector's <=> operator yields.
// A zero vector is treated as unrelated to everything and sits at distance 1.
func CosineDistance(v1, v2 []float32) (float64, error) {
	if len(v1) == 0 || len(v2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("dimension mismatch: %d != %d", len(v1), len(v2))
	}

	var dot, norm1, norm2 float64
	for i := range v1 {
		a, b := float64(v1[i]), float64(v2[i])
		dot += a * b
		norm1 += a * a
		norm2 += b * b
	}
	if norm1 == 0 || norm2 == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(norm1)*math.Sqrt(norm2)), nil
}
