package analysis

import (
	"math"

	"github.com/rwelens/rwelens-cli/internal/study"
)

// CorrelationMatrix computes the pairwise Pearson matrix over the numeric
// schema, rounded to two decimals. Pairs without enough complete
// observations or without variance are NaN off the diagonal.
func CorrelationMatrix(ds *study.Dataset) ([]string, [][]float64) {
	cols := study.NumericColumns()
	series := make([][]float64, len(cols))
	for i, col := range cols {
		series[i] = ds.Numeric(col)
	}
	m := make([][]float64, len(cols))
	for i := range cols {
		m[i] = make([]float64, len(cols))
		for j := range cols {
			if i == j {
				m[i][j] = 1
				continue
			}
			r, _, ok := pearson(series[i], series[j])
			if !ok {
				m[i][j] = math.NaN()
				continue
			}
			m[i][j] = round2(r)
		}
	}
	return cols, m
}
