package models

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLocationKey(t *testing.T) {
	loc := Location{Latitude: 32.6689, Longitude: 71.8107}
	if got := loc.Key(); got != "32.6689_71.8107" {
		t.Errorf("Key() = %q, want 32.6689_71.8107", got)
	}
}

func TestLocationSameAs(t *testing.T) {
	tests := []struct {
		name string
		a, b Location
		want bool
	}{
		{
			name: "identical",
			a:    Location{32.6689, 71.8107},
			b:    Location{32.6689, 71.8107},
			want: true,
		},
		{
			name: "below tolerance",
			a:    Location{32.6689, 71.8107},
			b:    Location{32.66895, 71.81075},
			want: true,
		},
		{
			name: "latitude at 0.001",
			a:    Location{32.6689, 71.8107},
			b:    Location{32.6699, 71.8107},
			want: false,
		},
		{
			name: "longitude at 0.001",
			a:    Location{32.6689, 71.8107},
			b:    Location{32.6689, 71.8117},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.SameAs(tt.b); got != tt.want {
				t.Errorf("SameAs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateRangeCovers(t *testing.T) {
	tests := []struct {
		name   string
		stored DateRange
		req    DateRange
		want   bool
	}{
		{
			name:   "exact match",
			stored: DateRange{day(2024, 1, 1), day(2024, 1, 31)},
			req:    DateRange{day(2024, 1, 1), day(2024, 1, 31)},
			want:   true,
		},
		{
			name:   "strict subset",
			stored: DateRange{day(2024, 1, 1), day(2024, 1, 31)},
			req:    DateRange{day(2024, 1, 10), day(2024, 1, 20)},
			want:   true,
		},
		{
			name:   "request starts earlier",
			stored: DateRange{day(2024, 1, 5), day(2024, 1, 31)},
			req:    DateRange{day(2024, 1, 1), day(2024, 1, 20)},
			want:   false,
		},
		{
			name:   "request ends later",
			stored: DateRange{day(2024, 1, 1), day(2024, 1, 20)},
			req:    DateRange{day(2024, 1, 10), day(2024, 1, 31)},
			want:   false,
		},
		{
			name:   "intra-day instants compare at date granularity",
			stored: DateRange{day(2024, 1, 1).Add(10 * time.Hour), day(2024, 1, 31)},
			req:    DateRange{day(2024, 1, 1).Add(2 * time.Hour), day(2024, 1, 31)},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stored.Covers(tt.req); got != tt.want {
				t.Errorf("Covers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateRangeDays(t *testing.T) {
	r := DateRange{day(2024, 1, 1), day(2024, 1, 30)}
	if got := r.Days(); got != 30 {
		t.Errorf("Days() = %d, want 30", got)
	}
}

func TestSortByTime(t *testing.T) {
	base := day(2024, 3, 1)
	ds := &Dataset{Observations: []Observation{
		{Time: base.Add(2 * time.Hour), Temperature: 2},
		{Time: base, Temperature: 0},
		{Time: base.Add(time.Hour), Temperature: 1},
		{Time: base.Add(time.Hour), Temperature: 99}, // duplicate, dropped
	}}
	ds.SortByTime()

	if ds.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", ds.Len())
	}
	for i, obs := range ds.Observations {
		if obs.Time != base.Add(time.Duration(i)*time.Hour) {
			t.Errorf("observation %d at %v, want %v", i, obs.Time, base.Add(time.Duration(i)*time.Hour))
		}
		if obs.Temperature != float64(i) {
			t.Errorf("observation %d temp = %v, want %d (first occurrence kept)", i, obs.Temperature, i)
		}
	}
}

func TestFilterRange(t *testing.T) {
	base := day(2024, 3, 1)
	ds := &Dataset{}
	for i := 0; i < 72; i++ {
		ds.Observations = append(ds.Observations, Observation{Time: base.Add(time.Duration(i) * time.Hour)})
	}

	filtered := ds.FilterRange(base.Add(24*time.Hour), base.Add(47*time.Hour))
	if filtered.Len() != 24 {
		t.Fatalf("Len() = %d, want 24", filtered.Len())
	}
	start, end, ok := filtered.TimeSpan()
	if !ok {
		t.Fatal("TimeSpan not ok")
	}
	if start != base.Add(24*time.Hour) || end != base.Add(47*time.Hour) {
		t.Errorf("span [%v, %v] outside requested window", start, end)
	}
}

func TestObservationValue(t *testing.T) {
	obs := Observation{Temperature: 21.5, WindDirection: math.NaN()}
	if v, ok := obs.Value(ParamTemperature); !ok || v != 21.5 {
		t.Errorf("Value(T2M) = %v, %v", v, ok)
	}
	if _, ok := obs.Value(ParamWindDirection); ok {
		t.Error("NaN wind direction should be absent")
	}
	if _, ok := obs.Value("BOGUS"); ok {
		t.Error("unknown parameter should be absent")
	}
}
