// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"strings"
	"time"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/paging"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServeList handles GET /account/activity.
//
// Query parameters: category (auth|account), start_date and end_date
// (YYYY-MM-DD, inclusive), limit, and before (the cursor from the
// previous page).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{UserID: &userID}

	filter.Category = strings.TrimSpace(q.Get("category"))
	if filter.Category != "" && !categories[filter.Category] {
		uierrors.WriteError(w, http.StatusBadRequest, "category must be auth or account")
		return
	}
	if s := strings.TrimSpace(q.Get("start_date")); s != "" {
		t, err := inputval.ParseDate(s)
		if err != nil {
			uierrors.WriteError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		filter.StartTime = &t
	}
	if s := strings.TrimSpace(q.Get("end_date")); s != "" {
		t, err := inputval.ParseDate(s)
		if err != nil {
			uierrors.WriteError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		// End of day
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	}

	before, hasBefore, err := paging.ParseBefore(r)
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "invalid before cursor")
		return
	}
	if hasBefore {
		filter.BeforeID = &before
	}
	limit := paging.ParseLimit(r)
	filter.Limit = paging.LimitPlusOne(limit)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "account activity list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "audit query failed", err, "Could not load account activity.")
		return
	}

	hasNext := paging.TrimPage(&events, limit)
	resp := listResponse{
		Events: make([]listItem, 0, len(events)),
		Before: paging.NextCursor(events, hasNext, func(ev audit.Event) primitive.ObjectID { return ev.ID }),
	}
	for _, ev := range events {
		resp.Events = append(resp.Events, toItem(ev))
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}
