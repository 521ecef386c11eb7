// internal/app/system/workers/viewreaper.go
package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleReaper unmounts dashboard views idle longer than maxIdle and returns
// how many it closed.
type IdleReaper interface {
	ReapIdle(maxIdle time.Duration) int
}

// Sweeper drops expired in-memory entries, such as rate limit windows.
type Sweeper interface {
	Sweep() int
}

// ViewReaper is a background worker that unmounts abandoned dashboard views
// and sweeps in-memory limiters.
type ViewReaper struct {
	views    IdleReaper
	sweepers []Sweeper
	log      *zap.Logger
	interval time.Duration
	maxIdle  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewViewReaper creates a view reaper.
func NewViewReaper(views IdleReaper, logger *zap.Logger, interval, maxIdle time.Duration, sweepers ...Sweeper) *ViewReaper {
	return &ViewReaper{
		views:    views,
		sweepers: sweepers,
		log:      logger,
		interval: interval,
		maxIdle:  maxIdle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background reap loop.
func (w *ViewReaper) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("dashboard view reaper started",
		zap.Duration("interval", w.interval),
		zap.Duration("max_idle", w.maxIdle))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *ViewReaper) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("dashboard view reaper stopped")
}

func (w *ViewReaper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs one reap pass and returns how many views were closed.
func (w *ViewReaper) RunOnce() int {
	n := w.views.ReapIdle(w.maxIdle)
	if n > 0 {
		w.log.Info("unmounted idle dashboard views", zap.Int("count", n))
	}
	for _, s := range w.sweepers {
		s.Sweep()
	}
	return n
}
