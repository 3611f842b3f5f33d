package forecast

import (
	"time"

	"github.com/lox/powerdash/internal/models"
)

// rainThreshold is the precipitation rate above which an hour counts as
// raining, in mm/hour.
const rainThreshold = 0.1

// RainForecast is an hourly rain-probability forecast in percent.
type RainForecast struct {
	Times         []time.Time `json:"times"`
	Probabilities []float64   `json:"probabilities"`
	Horizon       int         `json:"horizon_hours"`
}

// PredictRain forecasts the probability of rain by modelling a binary rain
// indicator over the precipitation series and rolling it forward. Predicted
// probabilities feed back into the lag features as hard 0/1 outcomes.
func PredictRain(ds *models.Dataset) (*RainForecast, error) {
	times, precip := series(ds, models.ParamPrecipitation)
	window, horizon, err := horizonFor(len(precip))
	if err != nil {
		return nil, err
	}

	binary := make([]float64, len(precip))
	for i, v := range precip {
		if v > rainThreshold {
			binary[i] = 1
		}
	}

	model, _, _, err := fit(times, binary, window)
	if err != nil {
		return nil, err
	}

	out := &RainForecast{Horizon: horizon}
	history := append([]float64(nil), binary...)
	t := times[len(times)-1]
	for i := 0; i < horizon; i++ {
		t = t.Add(time.Hour)
		p := clampProbability(model.predict(featureVector(history, t, window)))
		if p > 0.5 {
			history = append(history, 1)
		} else {
			history = append(history, 0)
		}
		out.Times = append(out.Times, t)
		out.Probabilities = append(out.Probabilities, 100*p)
	}
	return out, nil
}

func clampProbability(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
