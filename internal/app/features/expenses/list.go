// internal/app/features/expenses/list.go
package expenses

import (
	"context"
	"net/http"
	"time"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
)

type listResponse struct {
	MonthStart time.Time        `json:"month_start"`
	Total      decimal.Decimal  `json:"total"`
	Expenses   []models.Expense `json:"expenses"`
}

// ServeList handles GET /expenses: expenses dated in the current month,
// newest first, with their total.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	from := dashmetrics.MonthStart(h.Clock.Now())
	list, err := h.Expenses.ListSince(ctx, userID, from)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "list expenses", err, "Unable to load expenses.")
		return
	}

	resp := listResponse{MonthStart: from, Total: decimal.Zero, Expenses: list}
	if resp.Expenses == nil {
		resp.Expenses = []models.Expense{}
	}
	for _, e := range list {
		resp.Total = resp.Total.Add(e.Amount)
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}
