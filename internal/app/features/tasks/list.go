// internal/app/features/tasks/list.go
package tasks

import (
	"context"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
)

// ServeList handles GET /tasks: live tasks, open ones first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Tasks.ListLive(ctx, userID)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "list tasks", err, "Unable to load tasks.")
		return
	}
	if list == nil {
		list = []models.Task{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"tasks": list})
}
