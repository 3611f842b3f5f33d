// Package maintenance runs the periodic housekeeping that keeps the cache
// directory and coverage index bounded: age-based payload eviction followed
// by reconciliation of index records whose payloads no longer resolve.
package maintenance

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/lox/powerdash/internal/cache"
	"github.com/lox/powerdash/internal/metrics"
)

type Janitor struct {
	store     *cache.Store
	tracker   *cache.Tracker
	scheduler *gocron.Scheduler
	interval  time.Duration
}

func NewJanitor(store *cache.Store, tracker *cache.Tracker, interval time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		tracker:   tracker,
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
	}
}

// RunOnce sweeps expired cache entries, then prunes the coverage records left
// dangling. Sweep must run first so reconciliation sees the evictions.
func (j *Janitor) RunOnce() {
	evicted, err := j.store.Sweep()
	if err != nil {
		log.Printf("maintenance: sweep failed: %v", err)
	} else if evicted > 0 {
		log.Printf("maintenance: evicted %d expired cache entries", evicted)
		metrics.CacheEvictionsTotal.Add(float64(evicted))
	}

	pruned, err := j.tracker.Reconcile()
	if err != nil {
		log.Printf("maintenance: reconcile failed: %v", err)
	} else if pruned > 0 {
		log.Printf("maintenance: pruned %d dangling coverage records", pruned)
		metrics.IndexRecordsReconciled.Add(float64(pruned))
	}
}

// Start schedules the periodic maintenance job and returns immediately.
func (j *Janitor) Start() error {
	if _, err := j.scheduler.Every(j.interval).Do(j.RunOnce); err != nil {
		return err
	}
	j.scheduler.StartAsync()
	return nil
}

func (j *Janitor) Stop() {
	j.scheduler.Stop()
}
