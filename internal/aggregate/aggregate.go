// Package aggregate reduces per-item measurements into run-level results.
package aggregate

import (
	"fmt"
	"slices"
)

// Measured is anything that carries named numeric measurements.
type Measured interface {
	MeasurementValue(name string) (float64, bool)
}

// Stats summarizes a list of values.
type Stats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
}

// Values collects the measurement called name from every item. Every item
// must carry the measurement.
func Values[T Measured](name string, items []T) ([]float64, error) {
	values := make([]float64, 0, len(items))
	for i, item := range items {
		v, ok := item.MeasurementValue(name)
		if !ok {
			return nil, fmt.Errorf("item %d has no measurement %q", i, name)
		}
		values = append(values, v)
	}
	return values, nil
}

// MeanOfMeasurement averages the measurement called name across items.
// An empty list averages to 0.
func MeanOfMeasurement[T Measured](name string, items []T) (float64, error) {
	values, err := Values(name, items)
	if err != nil {
		return 0, err
	}
	return Mean(values), nil
}

// StatsOfMeasurement computes Stats for the measurement called name.
func StatsOfMeasurement[T Measured](name string, items []T) (Stats, error) {
	values, err := Values(name, items)
	if err != nil {
		return Stats{}, err
	}
	return Compute(values), nil
}

// Sum returns the total of values.
func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Compute returns count, mean, min, max and population variance.
func Compute(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	mean := Mean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return Stats{
		Count:    len(values),
		Mean:     mean,
		Min:      slices.Min(values),
		Max:      slices.Max(values),
		Variance: sumSquaredDiff / float64(len(values)),
	}
}
