// internal/app/features/expenses/handler.go
package expenses

import (
	"context"
	"encoding/json"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/htmlsanitize"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/limits"
	"github.com/sheltrhq/sheltr/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves manual expense entry and the current month's ledger.
type Handler struct {
	DB       *mongo.Database
	Expenses *expensestore.Store
	Metrics  *metricsstore.Store
	Clock    clock.Clock
	ErrLog   *uierrors.ErrorLogger
	Log      *zap.Logger
}

func NewHandler(db *mongo.Database, clk clock.Clock, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handler{
		DB:       db,
		Expenses: expensestore.New(db),
		Metrics:  metricsstore.New(db),
		Clock:    clk,
		ErrLog:   errLog,
		Log:      logger,
	}
}

func (h *Handler) write(ctx context.Context, userID primitive.ObjectID, fn func(ctx context.Context) error) error {
	return txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return h.Metrics.MarkDirty(ctx, userID)
	})
}

// expenseInput is shared by create and update. On update, absent fields
// are left unchanged. Amount may be a JSON string or number.
type expenseInput struct {
	Amount      json.RawMessage `json:"amount,omitempty"`
	Date        *string         `json:"date,omitempty"`
	Description *string         `json:"description,omitempty"`
	Category    *string         `json:"category,omitempty"`
}

func (in expenseInput) parse(res *inputval.Result) expensestore.Update {
	var u expensestore.Update
	if in.Amount != nil {
		amt, err := inputval.ParseAmount(string(in.Amount))
		if err != nil {
			res.Add("amount", err.Error())
		} else {
			u.Amount = &amt
		}
	}
	if in.Date != nil {
		d, err := inputval.ParseDate(*in.Date)
		if err != nil {
			res.Add("date", err.Error())
		} else {
			u.Date = &d
		}
	}
	if in.Description != nil {
		desc := htmlsanitize.Text(*in.Description)
		res.MaxLen("description", desc, limits.MaxDescriptionLen)
		u.Description = &desc
	}
	if in.Category != nil {
		cat := htmlsanitize.Text(*in.Category)
		res.MaxLen("category", cat, limits.MaxCategoryLen)
		u.Category = &cat
	}
	return u
}
