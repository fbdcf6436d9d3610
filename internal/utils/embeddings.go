package utils

import (
	"fmt"
)

// SquaredL2Distance returns the squared Euclidean distance between two vectors.
// Ranking by it is equivalent to ranking by L2 distance.
func SquaredL2Distance(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension (%d != %d)", len(vec1), len(vec2))
	}
	var sum float32
	for i := range vec1 {
		d := vec1[i] - vec2[i]
		sum += d * d
	}
	return sum, nil
}
