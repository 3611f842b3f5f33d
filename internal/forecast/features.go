// Package forecast trains short-horizon per-parameter prediction models over
// cleaned hourly weather data.
package forecast

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData rejects series shorter than two days of hourly rows.
var ErrInsufficientData = errors.New("insufficient data for prediction")

// lagHours are the lagged-value features fed to the model.
var lagHours = []int{1, 3, 6, 12, 24}

const maxLag = 24

// horizonFor selects the rolling window and prediction horizon from the
// series length: short series get a short look-back and a short horizon.
func horizonFor(n int) (window, horizon int, err error) {
	switch {
	case n < 48:
		return 0, 0, ErrInsufficientData
	case n < 168: // under a week
		return 24, 12, nil
	case n < 720: // under a month
		return 48, 24, nil
	default:
		return 72, 48, nil
	}
}

// featureVector builds the model input for predicting the value at t from the
// series history strictly before t: calendar features, a rolling mean and
// standard deviation over the trailing window, and the lagged values.
// history must hold at least maxLag values.
func featureVector(history []float64, t time.Time, window int) []float64 {
	features := make([]float64, 0, 6+len(lagHours))
	features = append(features,
		float64(t.Hour()),
		float64(t.Day()),
		float64(t.Month()),
		float64(t.Weekday()),
	)

	tail := history
	if len(tail) > window {
		tail = tail[len(tail)-window:]
	}
	features = append(features, stat.Mean(tail, nil))
	if len(tail) > 1 {
		features = append(features, stat.StdDev(tail, nil))
	} else {
		features = append(features, 0)
	}

	for _, lag := range lagHours {
		features = append(features, history[len(history)-lag])
	}
	return features
}

func featureCount() int { return 6 + len(lagHours) }
