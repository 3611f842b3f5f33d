package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/lox/powerdash/internal/models"
)

// sineDataset synthesizes n hourly rows with a daily temperature cycle and a
// periodic rain pattern.
func sineDataset(n int) *models.Dataset {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ds := &models.Dataset{}
	for i := 0; i < n; i++ {
		h := float64(i)
		precip := 0.0
		if int(h)%9 < 3 {
			precip = 0.5
		}
		ds.Observations = append(ds.Observations, models.Observation{
			Time:          base.Add(time.Duration(i) * time.Hour),
			Temperature:   18 + 6*math.Sin(2*math.Pi*h/24),
			Humidity:      60 + 15*math.Cos(2*math.Pi*h/24),
			WindSpeed:     3 + math.Sin(h/5),
			Precipitation: precip,
			WindDirection: 200,
		})
	}
	return ds
}

func TestHorizonFor(t *testing.T) {
	tests := []struct {
		n       int
		window  int
		horizon int
		wantErr bool
	}{
		{0, 0, 0, true},
		{47, 0, 0, true},
		{48, 24, 12, false},
		{167, 24, 12, false},
		{168, 48, 24, false},
		{719, 48, 24, false},
		{720, 72, 48, false},
		{2000, 72, 48, false},
	}
	for _, tt := range tests {
		window, horizon, err := horizonFor(tt.n)
		if tt.wantErr {
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("horizonFor(%d) err = %v, want ErrInsufficientData", tt.n, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("horizonFor(%d): %v", tt.n, err)
			continue
		}
		if window != tt.window || horizon != tt.horizon {
			t.Errorf("horizonFor(%d) = (%d, %d), want (%d, %d)", tt.n, window, horizon, tt.window, tt.horizon)
		}
	}
}

func TestPredict(t *testing.T) {
	ds := sineDataset(240)
	pred, err := Predict(ds, models.ParamTemperature)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Horizon != 24 {
		t.Errorf("Horizon = %d, want 24", pred.Horizon)
	}
	if len(pred.Times) != 24 || len(pred.Values) != 24 {
		t.Fatalf("forecast length = %d/%d, want 24/24", len(pred.Times), len(pred.Values))
	}

	last := ds.Observations[len(ds.Observations)-1].Time
	for i, at := range pred.Times {
		want := last.Add(time.Duration(i+1) * time.Hour)
		if !at.Equal(want) {
			t.Fatalf("Times[%d] = %s, want %s", i, at, want)
		}
	}
	for i, v := range pred.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("Values[%d] = %v", i, v)
		}
		// A clean daily cycle should forecast within the series' own band,
		// loosely bounded.
		if v < -20 || v > 60 {
			t.Errorf("Values[%d] = %v, far outside training range", i, v)
		}
	}
	if pred.MAPE < 0 || math.IsNaN(pred.MAPE) {
		t.Errorf("MAPE = %v", pred.MAPE)
	}
}

func TestPredictInsufficientData(t *testing.T) {
	if _, err := Predict(sineDataset(30), models.ParamTemperature); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("err = %v, want ErrInsufficientData", err)
	}
}

func TestPredictSkipsMissingValues(t *testing.T) {
	ds := sineDataset(100)
	for i := 0; i < len(ds.Observations); i += 7 {
		ds.Observations[i].Temperature = math.NaN()
	}
	pred, err := Predict(ds, models.ParamTemperature)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred.Values) != pred.Horizon {
		t.Errorf("forecast length = %d, want %d", len(pred.Values), pred.Horizon)
	}
}

func TestPredictRain(t *testing.T) {
	fc, err := PredictRain(sineDataset(240))
	if err != nil {
		t.Fatalf("PredictRain: %v", err)
	}
	if fc.Horizon != 24 || len(fc.Probabilities) != 24 {
		t.Fatalf("horizon/len = %d/%d, want 24/24", fc.Horizon, len(fc.Probabilities))
	}
	for i, p := range fc.Probabilities {
		if p < 0 || p > 100 || math.IsNaN(p) {
			t.Errorf("Probabilities[%d] = %v, want within [0, 100]", i, p)
		}
	}
}

func TestFeatureVectorShape(t *testing.T) {
	history := make([]float64, 48)
	for i := range history {
		history[i] = float64(i)
	}
	fv := featureVector(history, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), 24)
	if len(fv) != featureCount() {
		t.Fatalf("len = %d, want %d", len(fv), featureCount())
	}
	if fv[0] != 13 {
		t.Errorf("hour feature = %v, want 13", fv[0])
	}
	// Lag-1 is the most recent history value.
	if fv[6] != history[len(history)-1] {
		t.Errorf("lag-1 feature = %v, want %v", fv[6], history[len(history)-1])
	}
}
