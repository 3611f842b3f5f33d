package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/powerdash/internal/acquire"
	"github.com/lox/powerdash/internal/forecast"
	"github.com/lox/powerdash/internal/models"
	"github.com/lox/powerdash/internal/power"
	"github.com/lox/powerdash/internal/stats"
)

type rangeQuery struct {
	Lat  float64 `validate:"gte=-90,lte=90"`
	Lon  float64 `validate:"gte=-180,lte=180"`
	Days int     `validate:"gte=0,lte=366"`
}

// parseRequest builds an acquisition request from lat, lon and either days or
// start/end (YYYY-MM-DD) query parameters. Shape validation beyond syntax is
// left to the acquisition service.
func parseRequest(r *http.Request) (acquire.Request, error) {
	q := r.URL.Query()

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" || lonStr == "" {
		return acquire.Request{}, fmt.Errorf("lat and lon are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return acquire.Request{}, fmt.Errorf("invalid lat: %w", err)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return acquire.Request{}, fmt.Errorf("invalid lon: %w", err)
	}

	req := acquire.Request{Location: models.Location{Latitude: lat, Longitude: lon}}

	if daysStr := q.Get("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return acquire.Request{}, fmt.Errorf("invalid days: %w", err)
		}
		req.Days = days
	}
	if startStr := q.Get("start"); startStr != "" {
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return acquire.Request{}, fmt.Errorf("invalid start: %w", err)
		}
		req.Start = &start
	}
	if endStr := q.Get("end"); endStr != "" {
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return acquire.Request{}, fmt.Errorf("invalid end: %w", err)
		}
		req.End = &end
	}

	if err := validate.Struct(rangeQuery{Lat: lat, Lon: lon, Days: req.Days}); err != nil {
		return acquire.Request{}, err
	}
	return req, nil
}

func (s *Server) historicalData(w http.ResponseWriter, r *http.Request) (*models.Dataset, bool) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}

	ds, cacheHit, err := s.svc.HistoricalData(r.Context(), req)
	if err != nil {
		var remote *power.RemoteError
		switch {
		case errors.Is(err, acquire.ErrInvalidRange):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.As(err, &remote):
			writeError(w, http.StatusBadGateway, "remote_error", "weather service unavailable, try again")
		case errors.Is(err, acquire.ErrNoData):
			writeError(w, http.StatusNotFound, "no_data", "no data for this request")
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return nil, false
	}
	return ds, cacheHit
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	ds, cacheHit := s.historicalData(w, r)
	if ds == nil {
		return
	}
	writeJSON(w, toDatasetView(ds, cacheHit))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ds, _ := s.historicalData(w, r)
	if ds == nil {
		return
	}
	writeJSON(w, stats.Summarize(ds))
}

func (s *Server) handleWindRose(w http.ResponseWriter, r *http.Request) {
	ds, _ := s.historicalData(w, r)
	if ds == nil {
		return
	}
	rose := stats.WindRose(ds)
	if len(rose) == 0 {
		writeError(w, http.StatusNotFound, "no_data", "no wind direction data for this request")
		return
	}
	writeJSON(w, rose)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Query().Get("param")
	if param == "" {
		param = models.ParamTemperature
	}

	ds, _ := s.historicalData(w, r)
	if ds == nil {
		return
	}

	if param == "rain" {
		pred, err := forecast.PredictRain(ds)
		if err != nil {
			writePredictError(w, err)
			return
		}
		writeJSON(w, pred)
		return
	}

	if !knownParameter(param) {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown parameter %q", param))
		return
	}
	pred, err := forecast.Predict(ds, param)
	if err != nil {
		writePredictError(w, err)
		return
	}
	writeJSON(w, pred)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}

	result, err := s.geocoder.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, "remote_error", "geocoding unavailable, try again")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "not_found", "no match for query")
		return
	}
	writeJSON(w, map[string]interface{}{
		"latitude":     result.Latitude,
		"longitude":    result.Longitude,
		"display_name": result.DisplayName,
	})
}

func knownParameter(param string) bool {
	for _, p := range models.AllParameters() {
		if p == param {
			return true
		}
	}
	return false
}

func writePredictError(w http.ResponseWriter, err error) {
	if errors.Is(err, forecast.ErrInsufficientData) {
		writeError(w, http.StatusUnprocessableEntity, "insufficient_data", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "reason": reason})
}
