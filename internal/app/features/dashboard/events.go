// internal/app/features/dashboard/events.go
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServeEvents handles GET /dashboard/views/{id}/events as a Server-Sent
// Events stream. The current state is sent at once, then again after every
// change to the view or to the user's budget. A "closed" event is sent
// when the view is unmounted. Disconnecting leaves the view mounted.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		uierrors.WriteError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	states, stopWatch := v.Agg.Watch()
	defer stopWatch()

	var budgets <-chan decimal.Decimal
	if h.Budgets != nil {
		ch, cancel := h.Budgets.Subscribe(v.UserID)
		defer cancel()
		budgets = ch
	}

	h.Views.StreamStarted(v)
	defer h.Views.StreamEnded(v)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	log := h.Log.With(zap.String("view_id", v.ID))
	send := func(event string, body any) bool {
		data, err := json.Marshal(body)
		if err != nil {
			log.Error("encode dashboard event", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	st := v.Agg.State()
	b := h.budgetFor(r.Context(), v.UserID)
	if !send("state", withBudget(v.ID, st, b)) {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case next, ok := <-states:
			if !ok {
				send("closed", map[string]string{"id": v.ID})
				return
			}
			st = next
			if !send("state", withBudget(v.ID, st, b)) {
				return
			}
		case nb, ok := <-budgets:
			if !ok {
				budgets = nil
				continue
			}
			b = &nb
			if !send("state", withBudget(v.ID, st, b)) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
