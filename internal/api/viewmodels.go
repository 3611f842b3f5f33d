package api

import (
	"math"
	"time"

	"github.com/lox/powerdash/internal/models"
)

// ObservationView is the JSON shape of one hourly row. Absent values are null
// rather than NaN, which encoding/json cannot represent.
type ObservationView struct {
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature_c"`
	Humidity      *float64  `json:"humidity_pct"`
	WindSpeed     *float64  `json:"wind_speed_ms"`
	Precipitation *float64  `json:"precipitation_mm_hr"`
	WindDirection *float64  `json:"wind_direction_deg"`
}

type DatasetView struct {
	Location     LocationView      `json:"location"`
	CacheHit     bool              `json:"cache_hit"`
	Rows         int               `json:"rows"`
	Observations []ObservationView `json:"observations"`
}

type LocationView struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func toDatasetView(ds *models.Dataset, cacheHit bool) DatasetView {
	view := DatasetView{
		Location: LocationView{Latitude: ds.Location.Latitude, Longitude: ds.Location.Longitude},
		CacheHit: cacheHit,
		Rows:     ds.Len(),
	}
	for _, obs := range ds.Observations {
		view.Observations = append(view.Observations, ObservationView{
			Time:          obs.Time,
			Temperature:   optional(obs.Temperature),
			Humidity:      optional(obs.Humidity),
			WindSpeed:     optional(obs.WindSpeed),
			Precipitation: optional(obs.Precipitation),
			WindDirection: optional(obs.WindDirection),
		})
	}
	return view
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
