// Package geocode resolves free-text place queries to coordinates via the
// Nominatim search API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/powerdash/internal/httputil"
	"github.com/lox/powerdash/internal/metrics"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org/search"

// userAgent identifies the application as Nominatim's usage policy requires.
const userAgent = "powerdash/1.0 (github.com/lox/powerdash)"

type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

type Client struct {
	baseURL    string
	client     *http.Client
	maxElapsed time.Duration
}

// NewClient returns a Nominatim client. An empty baseURL selects the public
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		client:     httputil.NewClient(),
		maxElapsed: 30 * time.Second,
	}
}

// Search resolves a query to its best match. A query with no matches returns
// (nil, nil): not found is not an error.
func (c *Client) Search(ctx context.Context, query string) (*Result, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("format", "json")
	values.Set("limit", "1")
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("geocode: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("geocode: %w", err))
			}
			return fmt.Errorf("geocode: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("geocode: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("geocode: status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("geocode: read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.GeocodeRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var places []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(body, &places); err != nil {
		metrics.GeocodeRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geocode: unmarshal: %w", err)
	}
	if len(places) == 0 {
		metrics.GeocodeRequestsTotal.WithLabelValues("not_found").Inc()
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocode: parse longitude: %w", err)
	}

	metrics.GeocodeRequestsTotal.WithLabelValues("ok").Inc()
	return &Result{Latitude: lat, Longitude: lon, DisplayName: places[0].DisplayName}, nil
}
