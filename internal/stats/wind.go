package stats

import (
	"math"

	"github.com/lox/powerdash/internal/models"
)

// Beaufort-style wind speed categories, simplified.
const (
	SpeedCalm           = "Calm"
	SpeedLightAir       = "Light Air"
	SpeedLightBreeze    = "Light Breeze"
	SpeedGentleBreeze   = "Gentle Breeze"
	SpeedModerateBreeze = "Moderate Breeze"
	SpeedFreshBreeze    = "Fresh Breeze"
	SpeedStrong         = "Strong+"
)

// SpeedCategories lists the categories from calmest to strongest.
func SpeedCategories() []string {
	return []string{SpeedCalm, SpeedLightAir, SpeedLightBreeze, SpeedGentleBreeze, SpeedModerateBreeze, SpeedFreshBreeze, SpeedStrong}
}

// CategorizeSpeed maps a wind speed in m/s onto its category.
func CategorizeSpeed(speed float64) string {
	switch {
	case speed < 0.5:
		return SpeedCalm
	case speed < 1.5:
		return SpeedLightAir
	case speed < 3.3:
		return SpeedLightBreeze
	case speed < 5.5:
		return SpeedGentleBreeze
	case speed < 7.9:
		return SpeedModerateBreeze
	case speed < 10.7:
		return SpeedFreshBreeze
	default:
		return SpeedStrong
	}
}

// SectorLabels are the 16 compass sectors, 22.5° each, with north centred on
// zero.
var SectorLabels = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// Sector maps a wind direction in degrees onto its compass sector label.
func Sector(degrees float64) string {
	d := math.Mod(degrees+11.25, 360)
	if d < 0 {
		d += 360
	}
	return SectorLabels[int(d/22.5)%16]
}

// RoseSector is one row of a wind rose: the frequency of each speed category
// within one compass sector, as a percentage of the sector's observations.
type RoseSector struct {
	Sector      string             `json:"sector"`
	Count       int                `json:"count"`
	Frequencies map[string]float64 `json:"frequencies"`
}

// WindRose bins observations with both speed and direction present into 16
// compass sectors and normalises speed-category counts within each sector to
// percentages.
func WindRose(ds *models.Dataset) []RoseSector {
	type bin struct {
		count  int
		counts map[string]int
	}
	bins := make(map[string]*bin, len(SectorLabels))

	for _, obs := range ds.Observations {
		speed, ok := obs.Value(models.ParamWindSpeed)
		if !ok {
			continue
		}
		dir, ok := obs.Value(models.ParamWindDirection)
		if !ok {
			continue
		}
		sector := Sector(dir)
		b := bins[sector]
		if b == nil {
			b = &bin{counts: make(map[string]int)}
			bins[sector] = b
		}
		b.count++
		b.counts[CategorizeSpeed(speed)]++
	}

	var rose []RoseSector
	for _, label := range SectorLabels {
		b := bins[label]
		if b == nil {
			continue
		}
		freq := make(map[string]float64, len(b.counts))
		for cat, n := range b.counts {
			freq[cat] = 100 * float64(n) / float64(b.count)
		}
		rose = append(rose, RoseSector{Sector: label, Count: b.count, Frequencies: freq})
	}
	return rose
}
