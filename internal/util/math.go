package util

import "math"

// Percent returns round(count/total*100); a zero total is treated as 1.
func Percent(count, total int) int {
	if total <= 0 {
		total = 1
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

// NonNegative clamps negative or NaN values to zero.
func NonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
