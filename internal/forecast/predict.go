package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/powerdash/internal/models"
)

// Prediction is an iterative multi-step forecast for one parameter.
type Prediction struct {
	Parameter string      `json:"parameter"`
	Times     []time.Time `json:"times"`
	Values    []float64   `json:"values"`
	// MAPE is the mean absolute percentage error of the model over a
	// held-back tail of the training series.
	MAPE    float64 `json:"mape"`
	Horizon int     `json:"horizon_hours"`
}

// Predict fits a model for the parameter and rolls it forward one hour at a
// time, feeding each prediction back into the lag features.
func Predict(ds *models.Dataset, param string) (*Prediction, error) {
	times, values := series(ds, param)
	window, horizon, err := horizonFor(len(values))
	if err != nil {
		return nil, err
	}

	model, features, targets, err := fit(times, values, window)
	if err != nil {
		return nil, err
	}

	pred := &Prediction{Parameter: param, Horizon: horizon}
	pred.MAPE = tailMAPE(model, features, targets)

	history := append([]float64(nil), values...)
	t := times[len(times)-1]
	for i := 0; i < horizon; i++ {
		t = t.Add(time.Hour)
		v := model.predict(featureVector(history, t, window))
		history = append(history, v)
		pred.Times = append(pred.Times, t)
		pred.Values = append(pred.Values, v)
	}
	return pred, nil
}

// series extracts the (time, value) pairs where the parameter is present.
func series(ds *models.Dataset, param string) ([]time.Time, []float64) {
	var times []time.Time
	var values []float64
	for _, obs := range ds.Observations {
		v, ok := obs.Value(param)
		if !ok {
			continue
		}
		times = append(times, obs.Time)
		values = append(values, v)
	}
	return times, values
}

// fit builds the supervised training set over the series and fits the model.
// The first maxLag rows have incomplete lag features and are excluded.
func fit(times []time.Time, values []float64, window int) (*ridgeModel, [][]float64, []float64, error) {
	if len(values) <= maxLag {
		return nil, nil, nil, ErrInsufficientData
	}

	features := make([][]float64, 0, len(values)-maxLag)
	targets := make([]float64, 0, len(values)-maxLag)
	for i := maxLag; i < len(values); i++ {
		features = append(features, featureVector(values[:i], times[i], window))
		targets = append(targets, values[i])
	}

	model, err := fitRidge(features, targets)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("train %d rows: %w", len(targets), err)
	}
	return model, features, targets, nil
}

// tailMAPE scores the model on the most recent quarter of the training set,
// capped at 100 rows. Near-zero actuals are skipped to keep the percentage
// meaningful.
func tailMAPE(model *ridgeModel, features [][]float64, targets []float64) float64 {
	size := len(targets) / 4
	if size > 100 {
		size = 100
	}
	if size == 0 {
		size = len(targets)
	}

	var sum float64
	var count int
	for i := len(targets) - size; i < len(targets); i++ {
		if math.Abs(targets[i]) < 1e-9 {
			continue
		}
		sum += math.Abs((targets[i] - model.predict(features[i])) / targets[i])
		count++
	}
	if count == 0 {
		return 0
	}
	return 100 * sum / float64(count)
}
