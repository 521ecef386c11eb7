// internal/app/features/budget/handler.go
package budget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/budget"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler reads and sets the signed-in user's monthly budget through the
// shared budget.Store, so open dashboard views see changes immediately.
type Handler struct {
	Budgets *budget.Store
	Audit   *auditlog.Logger
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger
}

func NewHandler(budgets *budget.Store, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Budgets: budgets, Audit: audit, ErrLog: errLog, Log: logger}
}

type budgetBody struct {
	Budget decimal.Decimal `json:"budget"`
}

// ServeBudget handles GET /budget. Users who never set one get 0.
func (h *Handler) ServeBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	v, err := h.Budgets.Get(ctx, userID)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "get budget", err, "Unable to load budget.")
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, budgetBody{Budget: v})
}

// HandleSet handles PUT /budget with {"budget": "1500.00"}.
func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	var in struct {
		Budget json.RawMessage `json:"budget"`
	}
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "set budget: bad body", err, err.Error())
		return
	}
	if in.Budget == nil {
		uierrors.WriteError(w, http.StatusBadRequest, "budget is required")
		return
	}
	v, err := inputval.ParseAmount(string(in.Budget))
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Budgets.Set(ctx, userID, v); err != nil {
		if errors.Is(err, budget.ErrNegative) {
			uierrors.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.ErrLog.LogServerError(w, r, "set budget", err, "Unable to save budget.")
		return
	}
	h.Audit.BudgetChanged(r.Context(), r, userID, v.String())

	uierrors.WriteJSON(w, http.StatusOK, budgetBody{Budget: v})
}
