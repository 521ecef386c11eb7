// Package banksync imports bank transactions as expenses.
//
// De-duplication: imported expenses are keyed by (user_id, external_id).
// Added and modified transactions upsert, removed ones delete, so replaying
// a page is harmless. Pending transactions and inflows are not expenses
// and are skipped. When a posted transaction names the pending one it
// replaces, any row imported under the pending id is deleted.
package banksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/htmlsanitize"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxPages bounds one sync so a provider that never clears has_more cannot
// pin a worker.
const maxPages = 500

// ErrTooManyPages is returned when a sync exceeds maxPages.
var ErrTooManyPages = errors.New("bank sync exceeded page limit")

// LinkStore is the subset of banklinkstore.Store the syncer needs.
type LinkStore interface {
	BeginSync(ctx context.Context, id primitive.ObjectID, staleAfter time.Duration) (models.BankLink, error)
	SaveCursor(ctx context.Context, id primitive.ObjectID, cursor string) error
	FinishSync(ctx context.Context, id primitive.ObjectID, syncErr error) error
}

// ExpenseWriter is the subset of expensestore.Store the syncer needs.
type ExpenseWriter interface {
	UpsertExternal(ctx context.Context, e models.Expense) (bool, error)
	DeleteExternal(ctx context.Context, userID primitive.ObjectID, externalIDs []string) (int64, error)
}

// DirtyMarker flags a user's dashboard snapshot as stale.
type DirtyMarker interface {
	MarkDirty(ctx context.Context, userID primitive.ObjectID) error
}

// Result summarizes one sync.
type Result struct {
	Pages    int   `json:"pages"`
	Upserted int   `json:"upserted"`
	Removed  int64 `json:"removed"`
	Skipped  int   `json:"skipped"`
}

// Changed reports whether the sync wrote anything.
func (r Result) Changed() bool { return r.Upserted > 0 || r.Removed > 0 }

// Syncer runs syncs for bank links.
type Syncer struct {
	Links      LinkStore
	Expenses   ExpenseWriter
	Dirty      DirtyMarker
	Provider   Provider
	Logger     *zap.Logger
	StaleAfter time.Duration
}

// Sync pages from the link's stored cursor until the provider reports no
// more changes, then stores the final cursor. A failed sync keeps the old
// cursor; the next attempt replays from there.
func (s *Syncer) Sync(ctx context.Context, linkID primitive.ObjectID) (Result, error) {
	log := s.logger().With(zap.String("bank_link_id", linkID.Hex()))

	stale := s.StaleAfter
	if stale <= 0 {
		stale = 15 * time.Minute
	}
	link, err := s.Links.BeginSync(ctx, linkID, stale)
	if err != nil {
		return Result{}, err
	}

	res, cursor, syncErr := s.pull(ctx, link)

	if res.Changed() && s.Dirty != nil {
		if err := s.Dirty.MarkDirty(ctx, link.UserID); err != nil {
			log.Warn("mark snapshot dirty failed", zap.Error(err))
		}
	}
	if syncErr == nil {
		syncErr = s.Links.SaveCursor(ctx, link.ID, cursor)
	}
	// Record the outcome even if ctx is already done.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Links.FinishSync(finishCtx, link.ID, syncErr); err != nil {
		log.Warn("record sync outcome failed", zap.Error(err))
	}

	if syncErr != nil {
		log.Warn("bank sync failed", zap.Int("pages", res.Pages), zap.Error(syncErr))
		return res, syncErr
	}
	log.Info("bank sync complete",
		zap.Int("pages", res.Pages),
		zap.Int("upserted", res.Upserted),
		zap.Int64("removed", res.Removed),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (s *Syncer) pull(ctx context.Context, link models.BankLink) (Result, string, error) {
	var res Result
	cursor := link.Cursor
	for {
		if res.Pages >= maxPages {
			return res, cursor, ErrTooManyPages
		}
		page, err := s.Provider.SyncTransactions(ctx, link.AccessToken, cursor)
		if err != nil {
			return res, cursor, err
		}
		res.Pages++

		if err := s.apply(ctx, link.UserID, page, &res); err != nil {
			return res, cursor, err
		}
		cursor = page.NextCursor
		if !page.HasMore {
			return res, cursor, nil
		}
	}
}

func (s *Syncer) apply(ctx context.Context, userID primitive.ObjectID, page Page, res *Result) error {
	var removed []string
	for i, txns := range [][]Transaction{page.Added, page.Modified} {
		modified := i == 1
		for _, t := range txns {
			if t.Pending || !t.Amount.IsPositive() || t.ID == "" || t.Date.IsZero() {
				res.Skipped++
				// A modified row that stopped qualifying may already be
				// imported; it must not keep counting as an expense.
				if modified && t.ID != "" {
					removed = append(removed, t.ID)
				}
				continue
			}
			if t.PendingTransactionID != "" {
				removed = append(removed, t.PendingTransactionID)
			}
			changed, err := s.Expenses.UpsertExternal(ctx, models.Expense{
				UserID:      userID,
				ExternalID:  t.ID,
				Amount:      t.Amount,
				Date:        t.Date.Time,
				Description: htmlsanitize.Text(t.Name),
				Category:    htmlsanitize.Text(t.Category),
				Source:      models.ExpenseSourceBank,
			})
			if err != nil {
				return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
			}
			if changed {
				res.Upserted++
			}
		}
	}

	for _, r := range page.Removed {
		removed = append(removed, r.ID)
	}
	if len(removed) > 0 {
		n, err := s.Expenses.DeleteExternal(ctx, userID, removed)
		if err != nil {
			return fmt.Errorf("remove transactions: %w", err)
		}
		res.Removed += n
	}
	return nil
}

func (s *Syncer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
