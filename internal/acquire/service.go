// Package acquire decides cache-hit versus remote fetch for historical
// weather requests, and records fetched data into both the cache store and
// the coverage index.
package acquire

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lox/powerdash/internal/cache"
	"github.com/lox/powerdash/internal/metrics"
	"github.com/lox/powerdash/internal/models"
	"github.com/lox/powerdash/internal/power"
)

var (
	// ErrInvalidRange rejects requests that violate the input contract
	// (end before start, both or neither request shape supplied) before any
	// fetch attempt.
	ErrInvalidRange = errors.New("invalid request range")

	// ErrNoData means the request completed but produced no usable rows,
	// for example when cleaning drops everything.
	ErrNoData = errors.New("no data for this request")
)

// Fetcher is the remote data source.
type Fetcher interface {
	FetchHourly(ctx context.Context, loc models.Location, start, end time.Time) (*models.Dataset, error)
}

type Service struct {
	store   *cache.Store
	tracker *cache.Tracker
	fetcher Fetcher
	now     func() time.Time
}

func NewService(store *cache.Store, tracker *cache.Tracker, fetcher Fetcher) *Service {
	return &Service{store: store, tracker: tracker, fetcher: fetcher, now: time.Now}
}

// Request carries exactly one of Days or the Start/End pair.
type Request struct {
	Location models.Location
	Days     int
	Start    *time.Time
	End      *time.Time
}

// normalize converts the two request shapes into a canonical window. Explicit
// date requests span [start 00:00, end 23:59]; rolling requests span
// [now - days, now].
func (r Request) normalize(now time.Time) (window models.DateRange, days int, explicit *models.DateRange, err error) {
	switch {
	case r.Start != nil && r.End != nil:
		if r.Days != 0 {
			return models.DateRange{}, 0, nil, ErrInvalidRange
		}
		if r.End.Before(*r.Start) {
			return models.DateRange{}, 0, nil, ErrInvalidRange
		}
		sy, sm, sd := r.Start.UTC().Date()
		ey, em, ed := r.End.UTC().Date()
		window = models.DateRange{
			Start: time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC),
			End:   time.Date(ey, em, ed, 23, 59, 59, 0, time.UTC),
		}
		return window, window.Days(), &window, nil
	case r.Start != nil || r.End != nil:
		return models.DateRange{}, 0, nil, ErrInvalidRange
	case r.Days > 0:
		window = models.DateRange{Start: now.Add(-time.Duration(r.Days) * 24 * time.Hour), End: now}
		return window, r.Days, nil, nil
	default:
		return models.DateRange{}, 0, nil, ErrInvalidRange
	}
}

// HistoricalData returns the dataset for the request and whether it was
// served from cache. Cache failure of any kind degrades to a remote fetch;
// remote failure surfaces as a *power.RemoteError and absence of usable rows
// as ErrNoData.
func (s *Service) HistoricalData(ctx context.Context, req Request) (*models.Dataset, bool, error) {
	now := s.now().UTC()
	window, days, explicit, err := req.normalize(now)
	if err != nil {
		return nil, false, err
	}

	// Coverage index first: any prior fetch spanning the window serves it.
	if fp, ok := s.tracker.Find(req.Location, window.Start, window.End); ok {
		ds, _, err := s.store.LoadByFingerprint(fp, window)
		if err != nil {
			log.Printf("acquire: coverage load for %s failed, refetching: %v", req.Location.Key(), err)
		} else if ds != nil && ds.Len() > 0 {
			metrics.CacheLookupsTotal.WithLabelValues("hit_coverage").Inc()
			return ds, true, nil
		}
		// Structural coverage without rows (cleaning dropped them) or a
		// stale/evicted payload: treat as a miss.
	}

	// Cache store second: coverage scan over stored metadata, then the exact
	// fingerprint.
	ds, _, err := s.store.Load(req.Location, days, explicit)
	if err != nil {
		log.Printf("acquire: cache load for %s failed, refetching: %v", req.Location.Key(), err)
	} else if ds != nil && ds.Len() > 0 {
		metrics.CacheLookupsTotal.WithLabelValues("hit_exact").Inc()
		return ds, true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	fetched, err := s.fetcher.FetchHourly(ctx, req.Location, window.Start, window.End)
	if err != nil {
		return nil, false, err
	}

	cleaned, stats := power.Clean(fetched)
	if cleaned.Len() == 0 {
		return nil, false, ErrNoData
	}
	if dropped := stats.Missing + stats.Outliers + stats.OutOfRange; dropped > 0 {
		log.Printf("acquire: cleaned %s: dropped %d rows (%d missing, %d outliers, %d out of range)",
			req.Location.Key(), dropped, stats.Missing, stats.Outliers, stats.OutOfRange)
	}

	// Persistence is best-effort: a failed save means the request proceeds
	// uncached, never that it aborts.
	fp, err := s.store.Save(cleaned, req.Location, days, explicit)
	if err != nil {
		log.Printf("acquire: cache save for %s failed: %v", req.Location.Key(), err)
		return cleaned, false, nil
	}
	if err := s.tracker.Add(req.Location, window.Start, window.End, fp); err != nil {
		log.Printf("acquire: coverage index append for %s failed: %v", req.Location.Key(), err)
	}
	return cleaned, false, nil
}
