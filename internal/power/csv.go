package power

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/powerdash/internal/models"
)

// headerSentinel marks the header row of the delimited-text response. The
// preamble above it has variable length, so the header is located by scanning
// rather than assuming a fixed offset.
const headerSentinel = "YEAR"

// ParseCSV decodes the POWER delimited-text format: a free-form preamble
// terminated by a header row whose first column is YEAR, followed by one row
// per hour with separate year/month/day/hour fields that are synthesized into
// a single timestamp.
func ParseCSV(r io.Reader, loc models.Location) (*models.Dataset, error) {
	scanner := bufio.NewScanner(r)

	var header []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if strings.TrimSpace(fields[0]) == headerSentinel {
			header = fields
			break
		}
	}
	if header == nil {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		return nil, fmt.Errorf("header row with %s column not found", headerSentinel)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"YEAR", "MO", "DY", "HR"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("header missing %s column", required)
		}
	}

	ds := &models.Dataset{Location: loc}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")

		year, err := intField(fields, colIdx, "YEAR")
		if err != nil {
			return nil, err
		}
		month, err := intField(fields, colIdx, "MO")
		if err != nil {
			return nil, err
		}
		day, err := intField(fields, colIdx, "DY")
		if err != nil {
			return nil, err
		}
		hour, err := intField(fields, colIdx, "HR")
		if err != nil {
			return nil, err
		}

		obs := models.Observation{
			Time:          time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC),
			Temperature:   floatField(fields, colIdx, models.ParamTemperature),
			Humidity:      floatField(fields, colIdx, models.ParamHumidity),
			WindSpeed:     floatField(fields, colIdx, models.ParamWindSpeed),
			Precipitation: floatField(fields, colIdx, models.ParamPrecipitation),
			WindDirection: floatField(fields, colIdx, models.ParamWindDirection),
		}
		ds.Observations = append(ds.Observations, obs)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return ds, nil
}

func intField(fields []string, colIdx map[string]int, name string) (int, error) {
	i := colIdx[name]
	if i >= len(fields) {
		return 0, fmt.Errorf("row too short for %s column", name)
	}
	v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}

func floatField(fields []string, colIdx map[string]int, name string) float64 {
	i, ok := colIdx[name]
	if !ok || i >= len(fields) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
