package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Parameter names follow the NASA POWER identifiers so that cached payloads
// stay byte-comparable with what the API returns.
const (
	ParamTemperature   = "T2M"         // air temperature at 2m, °C
	ParamHumidity      = "RH2M"        // relative humidity at 2m, %
	ParamWindSpeed     = "WS2M"        // wind speed at 2m, m/s
	ParamPrecipitation = "PRECTOTCORR" // corrected precipitation rate, mm/hour
	ParamWindDirection = "WD2M"        // wind direction at 2m, degrees
)

// RequiredParameters are the numeric columns that must be present in every
// cleaned row. Wind direction is optional and excluded from missing-value
// checks because the API omits it for some communities.
func RequiredParameters() []string {
	return []string{ParamTemperature, ParamHumidity, ParamWindSpeed, ParamPrecipitation}
}

func AllParameters() []string {
	return []string{ParamTemperature, ParamHumidity, ParamWindSpeed, ParamPrecipitation, ParamWindDirection}
}

// CoordTolerance is the coordinate distance below which two locations are the
// same cache entity (4 decimal places, roughly 11 metres).
const CoordTolerance = 1e-4

type Location struct {
	Latitude  float64
	Longitude float64
}

// Key returns the location identity used for cache fingerprints and the
// coverage index, rounded to 4 decimal places.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f_%.4f", l.Latitude, l.Longitude)
}

// SameAs reports whether the two locations are within CoordTolerance in both
// coordinates.
func (l Location) SameAs(other Location) bool {
	return math.Abs(l.Latitude-other.Latitude) < CoordTolerance &&
		math.Abs(l.Longitude-other.Longitude) < CoordTolerance
}

// DateRange is an inclusive instant pair. Coverage comparisons happen at date
// granularity.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Covers reports whether r fully contains other, compared at date granularity.
func (r DateRange) Covers(other DateRange) bool {
	return !dateOnly(r.Start).After(dateOnly(other.Start)) &&
		!dateOnly(r.End).Before(dateOnly(other.End))
}

// Days returns the inclusive day count of the range.
func (r DateRange) Days() int {
	return int(dateOnly(r.End).Sub(dateOnly(r.Start)).Hours()/24) + 1
}

// Observation is one hourly row. Missing values are NaN.
type Observation struct {
	Time          time.Time
	Temperature   float64
	Humidity      float64
	WindSpeed     float64
	Precipitation float64
	WindDirection float64
}

// Value returns the named parameter value and whether it is present.
func (o Observation) Value(param string) (float64, bool) {
	var v float64
	switch param {
	case ParamTemperature:
		v = o.Temperature
	case ParamHumidity:
		v = o.Humidity
	case ParamWindSpeed:
		v = o.WindSpeed
	case ParamPrecipitation:
		v = o.Precipitation
	case ParamWindDirection:
		v = o.WindDirection
	default:
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Dataset is an ordered run of hourly observations for one location.
type Dataset struct {
	Location     Location
	Observations []Observation
}

// SortByTime orders observations ascending and drops duplicate timestamps,
// keeping the first occurrence.
func (d *Dataset) SortByTime() {
	sort.SliceStable(d.Observations, func(i, j int) bool {
		return d.Observations[i].Time.Before(d.Observations[j].Time)
	})
	out := d.Observations[:0]
	var last time.Time
	for i, obs := range d.Observations {
		if i > 0 && obs.Time.Equal(last) {
			continue
		}
		out = append(out, obs)
		last = obs.Time
	}
	d.Observations = out
}

// FilterRange returns a new dataset restricted to [start, end] inclusive.
func (d *Dataset) FilterRange(start, end time.Time) *Dataset {
	filtered := &Dataset{Location: d.Location}
	for _, obs := range d.Observations {
		if obs.Time.Before(start) || obs.Time.After(end) {
			continue
		}
		filtered.Observations = append(filtered.Observations, obs)
	}
	return filtered
}

// TimeSpan returns the earliest and latest observation timestamps. ok is false
// for an empty dataset.
func (d *Dataset) TimeSpan() (start, end time.Time, ok bool) {
	if len(d.Observations) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = d.Observations[0].Time, d.Observations[0].Time
	for _, obs := range d.Observations[1:] {
		if obs.Time.Before(start) {
			start = obs.Time
		}
		if obs.Time.After(end) {
			end = obs.Time
		}
	}
	return start, end, true
}

// Column extracts the named parameter as a slice, NaN where absent.
func (d *Dataset) Column(param string) []float64 {
	col := make([]float64, len(d.Observations))
	for i, obs := range d.Observations {
		v, ok := obs.Value(param)
		if !ok {
			v = math.NaN()
		}
		col[i] = v
	}
	return col
}

func (d *Dataset) Len() int { return len(d.Observations) }

// CacheMetadata is the sidecar record written next to every cached payload.
type CacheMetadata struct {
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Days         int        `json:"days"`
	SavedAt      time.Time  `json:"saved_at"`
	DataStart    time.Time  `json:"data_start"`
	DataEnd      time.Time  `json:"data_end"`
	RequestStart *time.Time `json:"request_start,omitempty"`
	RequestEnd   *time.Time `json:"request_end,omitempty"`
	Rows         int        `json:"rows"`
}

// CoverageRecord is one fetched date range in the tracking index.
type CoverageRecord struct {
	Start       time.Time `json:"start_date"`
	End         time.Time `json:"end_date"`
	Fingerprint string    `json:"fingerprint"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// CoverageEntry holds everything ever fetched for one location key.
type CoverageEntry struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Ranges    []CoverageRecord `json:"data_ranges"`
}
