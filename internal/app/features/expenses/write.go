// internal/app/features/expenses/write.go
package expenses

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
)

// HandleCreate handles POST /expenses. Amount and date are required.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	var in expenseInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "create expense: bad body", err, err.Error())
		return
	}

	var res inputval.Result
	if in.Amount == nil {
		res.Add("amount", "amount is required")
	}
	if in.Date == nil {
		res.Add("date", "date is required")
	}
	u := in.parse(&res)
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	e := models.Expense{
		UserID: userID,
		Amount: *u.Amount,
		Date:   *u.Date,
		Source: models.ExpenseSourceManual,
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Category != nil {
		e.Category = *u.Category
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var created models.Expense
	err := h.write(ctx, userID, func(ctx context.Context) error {
		var err error
		created, err = h.Expenses.Create(ctx, e)
		return err
	})
	switch {
	case errors.Is(err, expensestore.ErrNegativeAmount), errors.Is(err, expensestore.ErrDateRequired):
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.ErrLog.LogServerError(w, r, "create expense", err, "Unable to save expense.")
	default:
		uierrors.WriteJSON(w, http.StatusCreated, created)
	}
}

// HandleUpdate handles PATCH /expenses/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	id, err := inputval.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "Invalid expense ID.")
		return
	}

	var in expenseInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "update expense: bad body", err, err.Error())
		return
	}
	var res inputval.Result
	u := in.parse(&res)
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var updated models.Expense
	err = h.write(ctx, userID, func(ctx context.Context) error {
		var err error
		updated, err = h.Expenses.Update(ctx, userID, id, u)
		return err
	})
	switch {
	case errors.Is(err, expensestore.ErrNotFound):
		uierrors.NotFound(w, "Expense not found.")
	case errors.Is(err, expensestore.ErrNegativeAmount):
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.ErrLog.LogServerError(w, r, "update expense", err, "Unable to update expense.")
	default:
		uierrors.WriteJSON(w, http.StatusOK, updated)
	}
}

// HandleDelete handles DELETE /expenses/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	id, err := inputval.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "Invalid expense ID.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err = h.write(ctx, userID, func(ctx context.Context) error {
		return h.Expenses.Delete(ctx, userID, id)
	})
	switch {
	case errors.Is(err, expensestore.ErrNotFound):
		uierrors.NotFound(w, "Expense not found.")
	case err != nil:
		h.ErrLog.LogServerError(w, r, "delete expense", err, "Unable to delete expense.")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
