// internal/app/system/workers/snapshotrefresh.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SnapshotStore is the subset of metricsstore.Store the refresher needs.
type SnapshotStore interface {
	DirtyUsers(ctx context.Context, limit int64) ([]primitive.ObjectID, error)
	StaleUsers(ctx context.Context, monthStart time.Time, limit int64) ([]primitive.ObjectID, error)
	DueUsers(ctx context.Context, now time.Time, limit int64) ([]primitive.ObjectID, error)
	Rebuild(ctx context.Context, userID primitive.ObjectID, now time.Time) (dashmetrics.Snapshot, error)
}

// SnapshotRefresher is a background worker that recomputes dashboard
// snapshots that were marked dirty, that belong to an earlier month, or
// whose overdue count went stale when a pending task fell due.
type SnapshotRefresher struct {
	store    SnapshotStore
	clock    clock.Clock
	log      *zap.Logger
	interval time.Duration
	batch    int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSnapshotRefresher creates a snapshot refresh worker.
//
// Parameters:
//   - store: the metrics store
//   - logger: zap logger for logging
//   - interval: how often to look for stale snapshots (e.g., 1 minute)
//   - batch: the most users rebuilt per pass
func NewSnapshotRefresher(store SnapshotStore, c clock.Clock, logger *zap.Logger, interval time.Duration, batch int64) *SnapshotRefresher {
	if c == nil {
		c = clock.System{}
	}
	if batch <= 0 {
		batch = 200
	}
	return &SnapshotRefresher{
		store:    store,
		clock:    c,
		log:      logger,
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background refresh loop.
func (w *SnapshotRefresher) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("snapshot refresh worker started",
		zap.Duration("interval", w.interval),
		zap.Int64("batch", w.batch))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *SnapshotRefresher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("snapshot refresh worker stopped")
}

func (w *SnapshotRefresher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce performs one refresh pass and returns how many snapshots were
// rebuilt.
func (w *SnapshotRefresher) RunOnce(parent context.Context) int {
	ctx, cancel := context.WithTimeout(parent, timeouts.Long())
	defer cancel()

	now := w.clock.Now()

	dirty, err := w.store.DirtyUsers(ctx, w.batch)
	if err != nil {
		w.log.Error("failed to list dirty snapshots", zap.Error(err))
		return 0
	}
	stale, err := w.store.StaleUsers(ctx, dashmetrics.MonthStart(now), w.batch)
	if err != nil {
		w.log.Error("failed to list stale snapshots", zap.Error(err))
	}
	due, err := w.store.DueUsers(ctx, now, w.batch)
	if err != nil {
		w.log.Error("failed to list snapshots past a due date", zap.Error(err))
	}

	ids := append(append(dirty, stale...), due...)
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	rebuilt := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if ctx.Err() != nil {
			break
		}
		if _, err := w.store.Rebuild(ctx, id, now); err != nil {
			w.log.Warn("snapshot rebuild failed", zap.String("user_id", id.Hex()), zap.Error(err))
			continue
		}
		rebuilt++
	}

	if rebuilt > 0 {
		w.log.Info("rebuilt dashboard snapshots", zap.Int("count", rebuilt))
	}
	return rebuilt
}
