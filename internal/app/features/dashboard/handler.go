// internal/app/features/dashboard/handler.go
package dashboard

import (
	"context"
	"time"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	"github.com/sheltrhq/sheltr/internal/app/system/budget"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves dashboard views. Each mounted view owns one
// dashmetrics.Aggregator; the Registry keeps them between requests.
type Handler struct {
	Views      *Registry
	Budgets    *budget.Store
	Metrics    *metricsstore.Store
	Subscriber dashmetrics.Subscriber // nil disables live deltas
	Clock      clock.Clock
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger

	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

func NewHandler(db *mongo.Database, views *Registry, budgets *budget.Store, sub dashmetrics.Subscriber, clk clock.Clock, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handler{
		Views:      views,
		Budgets:    budgets,
		Metrics:    metricsstore.New(db),
		Subscriber: sub,
		Clock:      clk,
		ErrLog:     errLog,
		Log:        logger,
		Heartbeat:  25 * time.Second,
	}
}

// newAggregator binds an Aggregator to userID. The identity is fixed at
// mount; signing out unmounts the user's views.
func (h *Handler) newAggregator(userID primitive.ObjectID, live bool) *dashmetrics.Aggregator {
	cfg := dashmetrics.Config{
		Identity:  dashmetrics.IdentityFunc(func() (primitive.ObjectID, bool) { return userID, true }),
		Snapshots: h.Metrics,
		Writer:    h.Metrics,
		Raw:       h.Metrics,
		Clock:     h.Clock,
		Logger:    h.Log,
	}
	if live {
		cfg.Subscriber = h.Subscriber
	}
	return dashmetrics.New(cfg)
}

// viewState is the JSON body for a view: the aggregator state plus the
// budget and what is left of it this month.
type viewState struct {
	ID string `json:"id,omitempty"`
	dashmetrics.State
	Budget    *decimal.Decimal `json:"budget,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
}

func withBudget(id string, st dashmetrics.State, b *decimal.Decimal) viewState {
	vs := viewState{ID: id, State: st, Budget: b}
	if b != nil && st.Metrics != nil {
		rem := b.Sub(st.Metrics.MonthlyExpenses)
		vs.Remaining = &rem
	}
	return vs
}

// budgetFor returns the user's budget, or nil when it cannot be read.
// A budget failure never fails the dashboard.
func (h *Handler) budgetFor(ctx context.Context, userID primitive.ObjectID) *decimal.Decimal {
	if h.Budgets == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	v, err := h.Budgets.Get(ctx, userID)
	if err != nil {
		h.Log.Warn("dashboard budget lookup failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return nil
	}
	return &v
}
