package util

import (
	"math"
	"time"
)

// Round Method to round to 2 decimals
func Round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Millis converts d to fractional milliseconds rounded to 2 decimals.
func Millis(d time.Duration) float64 {
	return Round(float64(d) / float64(time.Millisecond))
}
