package power

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/powerdash/internal/metrics"
	"github.com/lox/powerdash/internal/models"
)

const (
	// missingSentinel is the value the POWER API still uses for missing data
	// in some communities.
	missingSentinel = -999

	// minOutlierRows is the smallest window the statistical outlier pass runs
	// on. Below two days of hourly data the robust estimator discards valid
	// extreme-but-real observations, so only sentinel and bounds filtering
	// apply.
	minOutlierRows = 48

	supportFraction = 0.8
	contamination   = 0.10

	cStepIterations = 10
)

// CleanStats counts rows dropped at each cleaning stage.
type CleanStats struct {
	Missing    int
	Outliers   int
	OutOfRange int
}

// Clean removes missing-data sentinels, joint statistical outliers over the
// numeric parameter vector, and physically impossible values. Rows are
// dropped, never clamped.
func Clean(ds *models.Dataset) (*models.Dataset, CleanStats) {
	var stats CleanStats

	cleaned := dropMissing(ds, &stats)
	cleaned = dropOutliers(cleaned, &stats)
	cleaned = dropOutOfRange(cleaned, &stats)
	cleaned.SortByTime()

	metrics.RowsDroppedTotal.WithLabelValues("missing").Add(float64(stats.Missing))
	metrics.RowsDroppedTotal.WithLabelValues("outlier").Add(float64(stats.Outliers))
	metrics.RowsDroppedTotal.WithLabelValues("bounds").Add(float64(stats.OutOfRange))
	return cleaned, stats
}

func dropMissing(ds *models.Dataset, stats *CleanStats) *models.Dataset {
	out := &models.Dataset{Location: ds.Location}
	for _, obs := range ds.Observations {
		missing := false
		for _, param := range models.RequiredParameters() {
			v, ok := obs.Value(param)
			if !ok || v == missingSentinel {
				missing = true
				break
			}
		}
		if missing {
			stats.Missing++
			continue
		}
		// Wind direction is optional: a sentinel there blanks the field
		// rather than dropping the row.
		if obs.WindDirection == missingSentinel {
			obs.WindDirection = math.NaN()
		}
		out.Observations = append(out.Observations, obs)
	}
	return out
}

// dropOutliers removes joint multivariate outliers over the required numeric
// parameters using a robust covariance estimate (C-step refinement over the
// best support fraction of rows, elliptical envelope style), flagging the
// rows with the largest Mahalanobis distances.
func dropOutliers(ds *models.Dataset, stats *CleanStats) *models.Dataset {
	n := ds.Len()
	if n < minOutlierRows {
		return ds
	}

	params := models.RequiredParameters()
	x := mat.NewDense(n, len(params), nil)
	for i, obs := range ds.Observations {
		for j, param := range params {
			v, _ := obs.Value(param)
			x.Set(i, j, v)
		}
	}

	dists := robustDistances(x)
	if dists == nil {
		// Degenerate covariance (for example a dry spell with constant zero
		// precipitation noise across all columns): skip the pass.
		return ds
	}

	flagged := flagLargest(dists, int(math.Floor(contamination*float64(n))))

	out := &models.Dataset{Location: ds.Location}
	for i, obs := range ds.Observations {
		if flagged[i] {
			stats.Outliers++
			continue
		}
		out.Observations = append(out.Observations, obs)
	}
	return out
}

// robustDistances returns the Mahalanobis distance of every row from a robust
// location/scatter estimate, or nil when no usable covariance factorisation
// exists.
func robustDistances(x *mat.Dense) []float64 {
	n, p := x.Dims()
	h := int(supportFraction * float64(n))
	if h <= p {
		return nil
	}

	subset := make([]int, n)
	for i := range subset {
		subset[i] = i
	}

	var dists []float64
	for iter := 0; iter < cStepIterations; iter++ {
		mean, chol := estimate(x, subset)
		if chol == nil {
			return nil
		}

		dists = make([]float64, n)
		row := mat.NewVecDense(p, nil)
		for i := 0; i < n; i++ {
			mat.Row(row.RawVector().Data, i, x)
			dists[i] = stat.Mahalanobis(row, mean, chol)
		}

		next := flagSmallest(dists, h)
		if equalInts(next, subset) {
			break
		}
		subset = next
	}
	return dists
}

// estimate computes the mean vector and covariance Cholesky factor over the
// given row subset, ridging the diagonal if the plain factorisation fails.
func estimate(x *mat.Dense, subset []int) (*mat.VecDense, *mat.Cholesky) {
	_, p := x.Dims()
	sub := mat.NewDense(len(subset), p, nil)
	for i, idx := range subset {
		sub.SetRow(i, mat.Row(nil, idx, x))
	}

	mean := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		mean.SetVec(j, stat.Mean(mat.Col(nil, j, sub), nil))
	}

	cov := mat.NewSymDense(p, nil)
	stat.CovarianceMatrix(cov, sub, nil)

	var chol mat.Cholesky
	if chol.Factorize(cov) {
		return mean, &chol
	}

	ridge := 1e-8 * mat.Trace(cov)
	if ridge <= 0 {
		ridge = 1e-8
	}
	for j := 0; j < p; j++ {
		cov.SetSym(j, j, cov.At(j, j)+ridge)
	}
	if chol.Factorize(cov) {
		return mean, &chol
	}
	return nil, nil
}

// flagSmallest returns the indices of the k smallest distances, sorted.
func flagSmallest(dists []float64, k int) []int {
	idx := make([]int, len(dists))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return dists[idx[a]] < dists[idx[b]] })
	keep := append([]int(nil), idx[:k]...)
	sort.Ints(keep)
	return keep
}

// flagLargest marks the k rows with the largest distances.
func flagLargest(dists []float64, k int) []bool {
	flagged := make([]bool, len(dists))
	if k <= 0 {
		return flagged
	}
	idx := make([]int, len(dists))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return dists[idx[a]] > dists[idx[b]] })
	for _, i := range idx[:k] {
		flagged[i] = true
	}
	return flagged
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dropOutOfRange(ds *models.Dataset, stats *CleanStats) *models.Dataset {
	out := &models.Dataset{Location: ds.Location}
	for _, obs := range ds.Observations {
		if !withinBounds(obs) {
			stats.OutOfRange++
			continue
		}
		out.Observations = append(out.Observations, obs)
	}
	return out
}

// Hard physical-plausibility bounds; applied as a final exclusion pass after
// statistical filtering.
func withinBounds(obs models.Observation) bool {
	if obs.Humidity < 0 || obs.Humidity > 100 {
		return false
	}
	if obs.Temperature < -50 || obs.Temperature > 60 {
		return false
	}
	if obs.Precipitation < 0 || obs.Precipitation > 500 {
		return false
	}
	if !math.IsNaN(obs.WindDirection) && (obs.WindDirection < 0 || obs.WindDirection > 360) {
		return false
	}
	return true
}
