// Package power fetches historical hourly observations from the NASA POWER
// API and cleans them into a uniform dataset.
package power

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/lox/powerdash/internal/httputil"
	"github.com/lox/powerdash/internal/metrics"
	"github.com/lox/powerdash/internal/models"
)

const defaultBaseURL = "https://power.larc.nasa.gov/api/temporal/hourly/point"

// RemoteError is a failed fetch: network failure, non-success status, or an
// unparseable response. The orchestrator reports it as absence, it is never
// retried past the client's own backoff.
type RemoteError struct {
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("power api: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("power api: %v", e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

type Client struct {
	baseURL    string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	community  string
	parameters []string
	maxElapsed time.Duration
}

// NewClient returns a POWER API client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "power",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &Client{
		baseURL:    baseURL,
		client:     httputil.NewClient(),
		breaker:    cb,
		community:  "AG",
		parameters: models.AllParameters(),
		maxElapsed: 2 * time.Minute,
	}
}

// FetchHourly retrieves one row per hour for the location over [start, end]
// (dates inclusive). The response is either JSON or delimited text with a
// variable-length preamble; both are handled.
func (c *Client) FetchHourly(ctx context.Context, loc models.Location, start, end time.Time) (*models.Dataset, error) {
	values := url.Values{}
	values.Set("parameters", strings.Join(c.parameters, ","))
	values.Set("community", c.community)
	values.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	values.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	values.Set("start", start.UTC().Format("20060102"))
	values.Set("end", end.UTC().Format("20060102"))
	values.Set("format", "JSON")
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	began := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, reqURL)
	})
	metrics.RemoteFetchLatency.Observe(time.Since(began).Seconds())
	if err != nil {
		metrics.RemoteFetchesTotal.WithLabelValues("error").Inc()
		var re *RemoteError
		if !asRemoteError(err, &re) {
			err = &RemoteError{Err: err}
		}
		return nil, err
	}
	resp := result.(*response)

	var ds *models.Dataset
	if strings.Contains(resp.contentType, "csv") || strings.Contains(resp.contentType, "text/plain") {
		ds, err = ParseCSV(strings.NewReader(string(resp.body)), loc)
	} else {
		ds, err = ParseJSON(resp.body, loc)
	}
	if err != nil {
		metrics.RemoteFetchesTotal.WithLabelValues("error").Inc()
		return nil, &RemoteError{Err: err}
	}
	metrics.RemoteFetchesTotal.WithLabelValues("ok").Inc()
	return ds, nil
}

type response struct {
	body        []byte
	contentType string
}

func (c *Client) get(ctx context.Context, reqURL string) (*response, error) {
	var out *response
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(&RemoteError{Err: err})
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&RemoteError{Err: err})
			}
			return &RemoteError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("transient failure")}
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(&RemoteError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(b)))})
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &RemoteError{Err: fmt.Errorf("read body: %w", err)}
		}
		out = &response{body: body, contentType: resp.Header.Get("Content-Type")}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func asRemoteError(err error, target **RemoteError) bool {
	for err != nil {
		if re, ok := err.(*RemoteError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type jsonResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// ParseJSON decodes the nested parameter→timestamp→value map into a dataset
// ordered by timestamp. Timestamps are YYYYMMDDHH in UTC.
func ParseJSON(body []byte, loc models.Location) (*models.Dataset, error) {
	var payload jsonResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(payload.Properties.Parameter) == 0 {
		return nil, fmt.Errorf("no parameter data in response")
	}

	stamps := make(map[string]struct{})
	for _, series := range payload.Properties.Parameter {
		for ts := range series {
			stamps[ts] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(stamps))
	for ts := range stamps {
		ordered = append(ordered, ts)
	}
	sort.Strings(ordered)

	ds := &models.Dataset{Location: loc}
	for _, ts := range ordered {
		at, err := time.ParseInLocation("2006010215", ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		obs := models.Observation{
			Time:          at,
			Temperature:   paramValue(payload.Properties.Parameter, models.ParamTemperature, ts),
			Humidity:      paramValue(payload.Properties.Parameter, models.ParamHumidity, ts),
			WindSpeed:     paramValue(payload.Properties.Parameter, models.ParamWindSpeed, ts),
			Precipitation: paramValue(payload.Properties.Parameter, models.ParamPrecipitation, ts),
			WindDirection: paramValue(payload.Properties.Parameter, models.ParamWindDirection, ts),
		}
		ds.Observations = append(ds.Observations, obs)
	}
	return ds, nil
}

func paramValue(params map[string]map[string]float64, name, ts string) float64 {
	series, ok := params[name]
	if !ok {
		return math.NaN()
	}
	v, ok := series[ts]
	if !ok {
		return math.NaN()
	}
	return v
}
