package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lox/powerdash/internal/models"
)

// Tracker is the persistent coverage index: for each location key, the list of
// date ranges fetched so far and the fingerprints their payloads live under.
// The index is loaded once at construction and flushed after every append.
type Tracker struct {
	dir  string
	path string
	mu   sync.Mutex
	idx  map[string]*models.CoverageEntry
	now  func() time.Time
}

// NewTracker opens (or initialises) the tracking index inside the cache
// directory.
func NewTracker(cfg Config) (*Tracker, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: cfg.Dir, Err: err}
	}

	t := &Tracker{
		dir:  cfg.Dir,
		path: filepath.Join(cfg.Dir, trackingFilename),
		idx:  make(map[string]*models.CoverageEntry),
		now:  time.Now,
	}

	b, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		if err := t.flush(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read index", Path: t.path, Err: err}
	}
	if err := json.Unmarshal(b, &t.idx); err != nil {
		return nil, &IOError{Op: "parse index", Path: t.path, Err: err}
	}
	return t, nil
}

// Add appends a coverage record for the location and persists the whole index
// immediately. Fetches are infrequent and human-paced, so there is no
// batching.
func (t *Tracker) Add(loc models.Location, start, end time.Time, fingerprint string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := loc.Key()
	entry, ok := t.idx[key]
	if !ok {
		entry = &models.CoverageEntry{Latitude: loc.Latitude, Longitude: loc.Longitude}
		t.idx[key] = entry
	}
	entry.Ranges = append(entry.Ranges, models.CoverageRecord{
		Start:       start.UTC(),
		End:         end.UTC(),
		Fingerprint: fingerprint,
		RecordedAt:  t.now().UTC(),
	})
	return t.flush()
}

// Find scans the location's coverage records (tolerance-matched) and returns
// the fingerprint of the first record whose range covers the requested range
// and whose payload still exists on disk. Records pointing at evicted payloads
// are skipped, not repaired; Reconcile prunes them.
func (t *Tracker) Find(loc models.Location, start, end time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	requested := models.DateRange{Start: start, End: end}
	for _, entry := range t.idx {
		if !loc.SameAs(models.Location{Latitude: entry.Latitude, Longitude: entry.Longitude}) {
			continue
		}
		for _, rec := range entry.Ranges {
			stored := models.DateRange{Start: rec.Start, End: rec.End}
			if !stored.Covers(requested) {
				continue
			}
			if _, err := os.Stat(filepath.Join(t.dir, rec.Fingerprint+".csv")); err != nil {
				continue
			}
			return rec.Fingerprint, true
		}
	}
	return "", false
}

// Reconcile removes records whose payload no longer resolves on disk, so the
// index does not grow without bound as the retention sweep evicts entries.
// Returns the number of records dropped.
func (t *Tracker) Reconcile() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.idx {
		kept := entry.Ranges[:0]
		for _, rec := range entry.Ranges {
			if _, err := os.Stat(filepath.Join(t.dir, rec.Fingerprint+".csv")); err != nil {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		entry.Ranges = kept
		if len(entry.Ranges) == 0 {
			delete(t.idx, key)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, t.flush()
}

// Len returns the total number of coverage records across all locations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, entry := range t.idx {
		n += len(entry.Ranges)
	}
	return n
}

func (t *Tracker) flush() error {
	b, err := json.MarshalIndent(t.idx, "", "  ")
	if err != nil {
		return &IOError{Op: "encode index", Path: t.path, Err: err}
	}
	if err := os.WriteFile(t.path, b, 0o644); err != nil {
		return &IOError{Op: "write index", Path: t.path, Err: err}
	}
	return nil
}
