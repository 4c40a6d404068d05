// Package quantile summarizes distributions of run durations.
package quantile

import (
	"math"
	"sort"
)

// Quantile is a collection of data points.
type Quantile struct {
	Xs []float64

	// Sorted indicates that Xs is sorted in ascending order.
	Sorted bool
}

// FromInts builds a Quantile from integer values.
func FromInts(values []int) Quantile {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		xs = append(xs, float64(v))
	}
	return Quantile{Xs: xs}
}

// Bounds returns the minimum and maximum values of the Quantile.
func (q Quantile) Bounds() (min float64, max float64) {
	if len(q.Xs) == 0 {
		return 0, 0
	}
	if q.Sorted {
		return q.Xs[0], q.Xs[len(q.Xs)-1]
	}
	min, max = q.Xs[0], q.Xs[0]
	for _, x := range q.Xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return
}

// Mean returns the arithmetic mean of the Quantile, 0 when empty.
func (q Quantile) Mean() float64 {
	if len(q.Xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range q.Xs {
		sum += x
	}
	return sum / float64(len(q.Xs))
}

// Percentile returns the pctile-th value of the Quantile, interpolated
// with the R8 estimator. pctile is capped to [0, 1] and an empty Quantile
// returns 0.
func (q Quantile) Percentile(pctile float64) float64 {
	if len(q.Xs) == 0 {
		return 0
	} else if pctile <= 0 {
		min, _ := q.Bounds()
		return min
	} else if pctile >= 1 {
		_, max := q.Bounds()
		return max
	}

	if !q.Sorted {
		q = *q.Copy().Sort()
	}

	N := float64(len(q.Xs))
	n := 1/3.0 + pctile*(N+1/3.0) // R8
	kf, frac := math.Modf(n)
	k := int(kf)
	if k <= 0 {
		return q.Xs[0]
	} else if k >= len(q.Xs) {
		return q.Xs[len(q.Xs)-1]
	}
	return q.Xs[k-1] + frac*(q.Xs[k]-q.Xs[k-1])
}

// Sort sorts the values in place and returns q.
func (q *Quantile) Sort() *Quantile {
	if !q.Sorted {
		sort.Float64s(q.Xs)
		q.Sorted = true
	}
	return q
}

// Copy returns a Quantile sharing no data with q.
func (q Quantile) Copy() *Quantile {
	xs := make([]float64, len(q.Xs))
	copy(xs, q.Xs)
	return &Quantile{Xs: xs, Sorted: q.Sorted}
}
