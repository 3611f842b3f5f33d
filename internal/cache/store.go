// Package cache persists fetched weather datasets on disk and tracks which
// (location, date range) windows have been fetched so far. Each cached entry
// is a CSV payload plus a JSON metadata sidecar named by a deterministic
// fingerprint of the request parameters.
package cache

import (
	"crypto/md5"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lox/powerdash/internal/models"
)

const (
	DefaultMaxAge    = 24 * time.Hour
	DefaultRetention = 7 * 24 * time.Hour

	trackingFilename = "tracking.json"
)

// Config is passed explicitly into Store and Tracker constructors; there is no
// process-wide cache directory.
type Config struct {
	// Dir is the cache directory. Created on open if absent.
	Dir string
	// MaxAge is the freshness window: entries saved longer ago than this are
	// treated as absent on lookup. Zero means DefaultMaxAge.
	MaxAge time.Duration
	// Retention is how long payloads survive before Sweep removes them.
	// Zero means DefaultRetention.
	Retention time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAge == 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
	return c
}

// IOError wraps any filesystem or parse failure inside the cache layer. The
// orchestrator treats it as a miss, never as a fatal condition.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Fingerprint derives the stable cache key for a request. Coordinates are
// rounded to 4 decimal places so float noise below the location tolerance
// collides onto the same key. Explicit date ranges key on their dates; rolling
// requests key on the day count.
func Fingerprint(loc models.Location, days int, rng *models.DateRange) string {
	var params string
	if rng != nil {
		params = fmt.Sprintf("%s_%s_%s", loc.Key(), rng.Start.UTC().Format("20060102"), rng.End.UTC().Format("20060102"))
	} else {
		params = fmt.Sprintf("%s_%d", loc.Key(), days)
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(params)))
}

// Store reads and writes (payload, metadata) pairs under a cache directory.
// Every operation is best-effort: callers degrade to a remote fetch on error.
type Store struct {
	cfg Config
	mu  sync.Mutex
	now func() time.Time
}

// NewStore opens the cache directory, creating it if needed.
func NewStore(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache: empty directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: cfg.Dir, Err: err}
	}
	return &Store{cfg: cfg, now: time.Now}, nil
}

func (s *Store) payloadPath(fp string) string {
	return filepath.Join(s.cfg.Dir, fp+".csv")
}

func (s *Store) metaPath(fp string) string {
	return filepath.Join(s.cfg.Dir, fp+".json")
}

// Save sorts the dataset by timestamp and writes payload and metadata under
// the fingerprinted name, returning the fingerprint used.
func (s *Store) Save(ds *models.Dataset, loc models.Location, days int, rng *models.DateRange) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds.SortByTime()
	fp := Fingerprint(loc, days, rng)

	if err := s.writePayload(s.payloadPath(fp), ds); err != nil {
		return "", err
	}

	meta := models.CacheMetadata{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Days:      days,
		SavedAt:   s.now().UTC(),
		Rows:      ds.Len(),
	}
	if start, end, ok := ds.TimeSpan(); ok {
		meta.DataStart = start
		meta.DataEnd = end
	}
	if rng != nil {
		start, end := rng.Start, rng.End
		meta.RequestStart = &start
		meta.RequestEnd = &end
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", &IOError{Op: "encode metadata", Path: s.metaPath(fp), Err: err}
	}
	if err := os.WriteFile(s.metaPath(fp), b, 0o644); err != nil {
		return "", &IOError{Op: "write metadata", Path: s.metaPath(fp), Err: err}
	}
	return fp, nil
}

// Load is a two-phase lookup. For explicit date ranges it first scans all
// stored metadata for a tolerance-matched location whose stored span covers
// the requested range, and returns the payload filtered to that window.
// Otherwise it falls back to the exact fingerprint. Both phases reject entries
// older than the freshness window. A clean miss returns (nil, nil, nil).
func (s *Store) Load(loc models.Location, days int, rng *models.DateRange) (*models.Dataset, *models.CacheMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rng != nil {
		ds, meta, err := s.scanCoverage(loc, *rng)
		if err != nil {
			return nil, nil, err
		}
		if ds != nil {
			return ds, meta, nil
		}
	}
	return s.loadExact(loc, days, rng)
}

// LoadByFingerprint loads the payload a coverage-index record points at,
// filtered to the requested window. Stale and vanished entries are misses.
func (s *Store) LoadByFingerprint(fp string, rng models.DateRange) (*models.Dataset, *models.CacheMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMetadata(s.metaPath(fp))
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if s.expired(meta.SavedAt) {
		return nil, nil, nil
	}

	ds, err := s.readPayload(s.payloadPath(fp), models.Location{Latitude: meta.Latitude, Longitude: meta.Longitude})
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return ds.FilterRange(rng.Start, rng.End), meta, nil
}

// Contains reports whether the fingerprint's payload still exists on disk.
func (s *Store) Contains(fp string) bool {
	_, err := os.Stat(s.payloadPath(fp))
	return err == nil
}

func (s *Store) expired(savedAt time.Time) bool {
	return s.now().Sub(savedAt) > s.cfg.MaxAge
}

func (s *Store) scanCoverage(loc models.Location, rng models.DateRange) (*models.Dataset, *models.CacheMetadata, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, nil, &IOError{Op: "scan", Path: s.cfg.Dir, Err: err}
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || name == trackingFilename {
			continue
		}
		metaPath := filepath.Join(s.cfg.Dir, name)
		meta, err := readMetadata(metaPath)
		if err != nil {
			// Corrupt or vanished sidecar: tolerated, keep scanning.
			continue
		}
		if !loc.SameAs(models.Location{Latitude: meta.Latitude, Longitude: meta.Longitude}) {
			continue
		}
		stored := models.DateRange{Start: meta.DataStart, End: meta.DataEnd}
		if !stored.Covers(rng) {
			continue
		}
		if s.expired(meta.SavedAt) {
			continue
		}

		fp := strings.TrimSuffix(name, ".json")
		ds, err := s.readPayload(s.payloadPath(fp), loc)
		if err != nil {
			continue
		}
		filtered := ds.FilterRange(rng.Start, rng.End)
		if filtered.Len() == 0 {
			// Structural coverage without row coverage: rows were dropped
			// during cleaning. Keep scanning.
			continue
		}
		return filtered, meta, nil
	}
	return nil, nil, nil
}

func (s *Store) loadExact(loc models.Location, days int, rng *models.DateRange) (*models.Dataset, *models.CacheMetadata, error) {
	fp := Fingerprint(loc, days, rng)
	meta, err := readMetadata(s.metaPath(fp))
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if s.expired(meta.SavedAt) {
		return nil, nil, nil
	}

	ds, err := s.readPayload(s.payloadPath(fp), loc)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return ds, meta, nil
}

func readMetadata(path string) (*models.CacheMetadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, &IOError{Op: "read metadata", Path: path, Err: err}
	}
	var meta models.CacheMetadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, &IOError{Op: "parse metadata", Path: path, Err: err}
	}
	return &meta, nil
}

var payloadHeader = append([]string{"timestamp"}, models.AllParameters()...)

func (s *Store) writePayload(path string, ds *models.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "write payload", Path: path, Err: err}
	}
	w := csv.NewWriter(f)

	if err := w.Write(payloadHeader); err != nil {
		f.Close()
		return &IOError{Op: "write payload", Path: path, Err: err}
	}
	for _, obs := range ds.Observations {
		record := make([]string, 0, len(payloadHeader))
		record = append(record, obs.Time.UTC().Format(time.RFC3339))
		for _, param := range models.AllParameters() {
			v, ok := obs.Value(param)
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return &IOError{Op: "write payload", Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return &IOError{Op: "write payload", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write payload", Path: path, Err: err}
	}
	return nil
}

func (s *Store) readPayload(path string, loc models.Location) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, &IOError{Op: "read payload", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, &IOError{Op: "parse payload", Path: path, Err: err}
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}
	if _, ok := colIdx["timestamp"]; !ok {
		return nil, &IOError{Op: "parse payload", Path: path, Err: fmt.Errorf("missing timestamp column")}
	}

	ds := &models.Dataset{Location: loc}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &IOError{Op: "parse payload", Path: path, Err: err}
		}
		ts, err := time.Parse(time.RFC3339, record[colIdx["timestamp"]])
		if err != nil {
			return nil, &IOError{Op: "parse payload", Path: path, Err: err}
		}
		obs := models.Observation{
			Time:          ts.UTC(),
			Temperature:   parseField(record, colIdx, models.ParamTemperature),
			Humidity:      parseField(record, colIdx, models.ParamHumidity),
			WindSpeed:     parseField(record, colIdx, models.ParamWindSpeed),
			Precipitation: parseField(record, colIdx, models.ParamPrecipitation),
			WindDirection: parseField(record, colIdx, models.ParamWindDirection),
		}
		ds.Observations = append(ds.Observations, obs)
	}
	return ds, nil
}

func parseField(record []string, colIdx map[string]int, param string) float64 {
	i, ok := colIdx[param]
	if !ok || i >= len(record) || record[i] == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(record[i], 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
