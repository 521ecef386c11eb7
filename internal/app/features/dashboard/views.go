// internal/app/features/dashboard/views.go
package dashboard

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// HandleMount handles POST /dashboard/views: mount a view, subscribe to
// changes and run the initial snapshot-mode refresh. A failed first
// refresh still mounts the view; its state carries the error.
func (h *Handler) HandleMount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	agg := h.newAggregator(userID, true)
	v := h.Views.Add(userID, agg)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()
	st := agg.Start(ctx)

	h.Log.Debug("dashboard view mounted",
		zap.String("view_id", v.ID),
		zap.String("user_id", userID.Hex()),
		zap.String("status", string(st.Status)))
	uierrors.WriteJSON(w, http.StatusCreated, withBudget(v.ID, st, h.budgetFor(r.Context(), userID)))
}

// view resolves {id} to a view owned by the current user, writing the
// error response when it cannot.
func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*View, bool) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return nil, false
	}
	v, err := h.Views.Get(chi.URLParam(r, "id"), userID)
	if err != nil {
		uierrors.NotFound(w, "Dashboard view not found.")
		return nil, false
	}
	return v, true
}

// ServeView handles GET /dashboard/views/{id}.
func (h *Handler) ServeView(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, withBudget(v.ID, v.Agg.State(), h.budgetFor(r.Context(), v.UserID)))
}

// HandleRefresh handles POST /dashboard/views/{id}/refresh (snapshot mode).
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, dashmetrics.ModeSnapshot)
}

// HandleRefreshLive handles POST /dashboard/views/{id}/refresh-live. Only
// this refresh is live; later ones read the snapshot again.
func (h *Handler) HandleRefreshLive(w http.ResponseWriter, r *http.Request) {
	h.refresh(w, r, dashmetrics.ModeLive)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, mode dashmetrics.Mode) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var st dashmetrics.State
	if mode == dashmetrics.ModeLive {
		st = v.Agg.RefreshLive(ctx)
	} else {
		st = v.Agg.Refresh(ctx)
	}
	uierrors.WriteJSON(w, http.StatusOK, withBudget(v.ID, st, h.budgetFor(r.Context(), v.UserID)))
}

// HandleUnmount handles DELETE /dashboard/views/{id}.
func (h *Handler) HandleUnmount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	if err := h.Views.Remove(chi.URLParam(r, "id"), userID); err != nil {
		uierrors.NotFound(w, "Dashboard view not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMetrics handles GET /dashboard/metrics?mode=snapshot|live: a
// one-shot computation without mounting a view. Default mode is snapshot.
func (h *Handler) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	mode := dashmetrics.Mode(r.URL.Query().Get("mode"))
	switch mode {
	case "":
		mode = dashmetrics.ModeSnapshot
	case dashmetrics.ModeSnapshot, dashmetrics.ModeLive:
	default:
		uierrors.WriteError(w, http.StatusBadRequest, `mode must be "snapshot" or "live"`)
		return
	}

	agg := h.newAggregator(userID, false)
	defer agg.Close()

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var st dashmetrics.State
	if mode == dashmetrics.ModeLive {
		st = agg.RefreshLive(ctx)
	} else {
		st = agg.Refresh(ctx)
	}

	status := http.StatusOK
	if st.Status == dashmetrics.StatusError {
		status = http.StatusServiceUnavailable
	}
	uierrors.WriteJSON(w, status, withBudget("", st, h.budgetFor(r.Context(), userID)))
}
