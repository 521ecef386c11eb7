// internal/app/system/workers/banksync.go
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LinkLister lists bank links eligible for a background sync.
type LinkLister interface {
	ListAll(ctx context.Context) ([]models.BankLink, error)
}

// LinkSyncer syncs one bank link.
type LinkSyncer interface {
	Sync(ctx context.Context, linkID primitive.ObjectID) (banksync.Result, error)
}

// SyncRecorder records a sync outcome.
type SyncRecorder func(ctx context.Context, link models.BankLink, res banksync.Result, err error)

// BankSync is a background worker that periodically syncs every bank link.
type BankSync struct {
	links    LinkLister
	syncer   LinkSyncer
	record   SyncRecorder
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBankSync creates a periodic bank sync worker. record may be nil.
func NewBankSync(links LinkLister, syncer LinkSyncer, record SyncRecorder, logger *zap.Logger, interval time.Duration) *BankSync {
	return &BankSync{
		links:    links,
		syncer:   syncer,
		record:   record,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sync loop.
func (w *BankSync) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("bank sync worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *BankSync) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("bank sync worker stopped")
}

func (w *BankSync) run() {
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

// RunOnce syncs every eligible link one at a time and returns how many
// succeeded. A link another process is syncing is skipped.
func (w *BankSync) RunOnce(parent context.Context) int {
	listCtx, cancel := context.WithTimeout(parent, timeouts.Medium())
	links, err := w.links.ListAll(listCtx)
	cancel()
	if err != nil {
		w.log.Error("failed to list bank links", zap.Error(err))
		return 0
	}

	ok := 0
	for _, link := range links {
		select {
		case <-w.stopCh:
			return ok
		default:
		}

		ctx, cancel := context.WithTimeout(parent, timeouts.Sync())
		res, err := w.syncer.Sync(ctx, link.ID)
		cancel()

		if errors.Is(err, banklinkstore.ErrSyncInProgress) {
			continue
		}
		if w.record != nil {
			w.record(parent, link, res, err)
		}
		if err == nil {
			ok++
		}
	}
	return ok
}
