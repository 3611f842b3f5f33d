// Package stats computes descriptive statistics and wind analysis over a
// weather dataset.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/powerdash/internal/models"
)

// Summary describes one parameter over a dataset.
type Summary struct {
	Parameter string  `json:"parameter"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
}

// Summarize computes per-parameter summaries over all parameters with at
// least one present value.
func Summarize(ds *models.Dataset) []Summary {
	var out []Summary
	for _, param := range models.AllParameters() {
		values := present(ds.Column(param))
		if len(values) == 0 {
			continue
		}
		s := Summary{
			Parameter: param,
			Count:     len(values),
			Min:       values[0],
			Max:       values[0],
			Mean:      stat.Mean(values, nil),
		}
		for _, v := range values {
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		if len(values) > 1 {
			s.StdDev = stat.StdDev(values, nil)
		}
		out = append(out, s)
	}
	return out
}

func present(col []float64) []float64 {
	out := col[:0:0]
	for _, v := range col {
		if math.IsNaN(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
