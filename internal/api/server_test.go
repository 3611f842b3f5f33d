package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lox/powerdash/internal/acquire"
	"github.com/lox/powerdash/internal/cache"
	"github.com/lox/powerdash/internal/geocode"
	"github.com/lox/powerdash/internal/models"
	"github.com/lox/powerdash/internal/power"
)

// fakePowerHandler serves POWER-shaped JSON with one plausible row per hour of
// the requested date window.
func fakePowerHandler(fetches *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*fetches++
		q := r.URL.Query()
		start, err := time.ParseInLocation("20060102", q.Get("start"), time.UTC)
		if err != nil {
			http.Error(w, "bad start", http.StatusUnprocessableEntity)
			return
		}
		end, err := time.ParseInLocation("20060102", q.Get("end"), time.UTC)
		if err != nil {
			http.Error(w, "bad end", http.StatusUnprocessableEntity)
			return
		}
		end = end.Add(23 * time.Hour)

		params := map[string]map[string]float64{}
		for _, p := range models.AllParameters() {
			params[p] = map[string]float64{}
		}
		h := 0.0
		for at := start; !at.After(end); at = at.Add(time.Hour) {
			ts := at.Format("2006010215")
			params[models.ParamTemperature][ts] = 18 + 8*math.Sin(h/24)
			params[models.ParamHumidity][ts] = 55 + 20*math.Cos(h/24)
			params[models.ParamWindSpeed][ts] = 3 + math.Sin(h/6)
			params[models.ParamPrecipitation][ts] = 0.2 * math.Abs(math.Sin(h/48))
			params[models.ParamWindDirection][ts] = 180 + 90*math.Sin(h/12)
			h++
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"properties": map[string]interface{}{"parameter": params},
		})
	}
}

type testStack struct {
	handler http.Handler
	fetches int
}

func setupStack(t *testing.T) *testStack {
	t.Helper()
	stack := &testStack{}

	upstream := httptest.NewServer(fakePowerHandler(&stack.fetches))
	t.Cleanup(upstream.Close)
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Sydney" {
			fmt.Fprint(w, `[{"lat":"-33.8688","lon":"151.2093","display_name":"Sydney, NSW, Australia"}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(nominatim.Close)

	cfg := cache.Config{Dir: t.TempDir()}
	store, err := cache.NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tracker, err := cache.NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	svc := acquire.NewService(store, tracker, power.NewClient(upstream.URL))
	stack.handler = NewServer(svc, geocode.NewClient(nominatim.URL), "0").Handler()
	return stack
}

func (s *testStack) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHistoricalEndpoint(t *testing.T) {
	stack := setupStack(t)

	rec := stack.get(t, "/api/historical?lat=32.6689&lon=71.8107&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view DatasetView
	decodeJSON(t, rec, &view)
	if view.CacheHit {
		t.Error("first request reported cache_hit")
	}
	if view.Rows == 0 || len(view.Observations) != view.Rows {
		t.Fatalf("rows = %d, observations = %d", view.Rows, len(view.Observations))
	}
	if stack.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", stack.fetches)
	}

	rec = stack.get(t, "/api/historical?lat=32.6689&lon=71.8107&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	decodeJSON(t, rec, &view)
	if !view.CacheHit {
		t.Error("second identical request missed the cache")
	}
	if stack.fetches != 1 {
		t.Errorf("fetches = %d, want 1", stack.fetches)
	}
}

func TestHistoricalEndpointBadRequest(t *testing.T) {
	stack := setupStack(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing lat", "/api/historical?lon=71.8107&days=7"},
		{"latitude out of range", "/api/historical?lat=99&lon=71.8107&days=7"},
		{"days out of range", "/api/historical?lat=32&lon=71&days=400"},
		{"bad date", "/api/historical?lat=32&lon=71&start=yesterday&end=2024-01-05"},
		{"no window", "/api/historical?lat=32&lon=71"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := stack.get(t, tt.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
	if stack.fetches != 0 {
		t.Errorf("fetches = %d, want 0", stack.fetches)
	}
}

func TestHistoricalEndpointUpstreamDown(t *testing.T) {
	stack := &testStack{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer upstream.Close()

	cfg := cache.Config{Dir: t.TempDir()}
	store, _ := cache.NewStore(cfg)
	tracker, _ := cache.NewTracker(cfg)
	svc := acquire.NewService(store, tracker, power.NewClient(upstream.URL))
	stack.handler = NewServer(svc, geocode.NewClient(""), "0").Handler()

	rec := stack.get(t, "/api/historical?lat=32&lon=71&days=7")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["reason"] != "remote_error" {
		t.Errorf("reason = %q, want remote_error", body["reason"])
	}
}

func TestSummaryEndpoint(t *testing.T) {
	stack := setupStack(t)
	rec := stack.get(t, "/api/summary?lat=32.6689&lon=71.8107&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summaries []map[string]interface{}
	decodeJSON(t, rec, &summaries)
	if len(summaries) == 0 {
		t.Fatal("no summaries")
	}
}

func TestWindRoseEndpoint(t *testing.T) {
	stack := setupStack(t)
	rec := stack.get(t, "/api/windrose?lat=32.6689&lon=71.8107&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rose []map[string]interface{}
	decodeJSON(t, rec, &rose)
	if len(rose) == 0 {
		t.Fatal("no sectors")
	}
}

func TestPredictEndpoint(t *testing.T) {
	stack := setupStack(t)

	rec := stack.get(t, "/api/predict?lat=32.6689&lon=71.8107&days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pred struct {
		Parameter string    `json:"parameter"`
		Values    []float64 `json:"values"`
		Horizon   int       `json:"horizon_hours"`
	}
	decodeJSON(t, rec, &pred)
	if pred.Parameter != models.ParamTemperature {
		t.Errorf("default parameter = %q, want %q", pred.Parameter, models.ParamTemperature)
	}
	if pred.Horizon == 0 || len(pred.Values) != pred.Horizon {
		t.Errorf("horizon = %d, values = %d", pred.Horizon, len(pred.Values))
	}

	rec = stack.get(t, "/api/predict?lat=32.6689&lon=71.8107&days=7&param=rain")
	if rec.Code != http.StatusOK {
		t.Fatalf("rain status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = stack.get(t, "/api/predict?lat=32.6689&lon=71.8107&days=7&param=BOGUS")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown param status = %d, want 400", rec.Code)
	}
}

func TestGeocodeEndpoint(t *testing.T) {
	stack := setupStack(t)

	rec := stack.get(t, "/api/geocode?q=Sydney")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	decodeJSON(t, rec, &body)
	if body["latitude"] != -33.8688 {
		t.Errorf("latitude = %v", body["latitude"])
	}

	if rec := stack.get(t, "/api/geocode?q=nowhere+in+particular"); rec.Code != http.StatusNotFound {
		t.Errorf("no-match status = %d, want 404", rec.Code)
	}
	if rec := stack.get(t, "/api/geocode"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	stack := setupStack(t)
	rec := stack.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}
