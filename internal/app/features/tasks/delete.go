// internal/app/features/tasks/delete.go
package tasks

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
)

// HandleDelete handles DELETE /tasks/{id}. The task is soft-deleted.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	id, err := inputval.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "Invalid task ID.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err = h.write(ctx, userID, func(ctx context.Context) error {
		return h.Tasks.SoftDelete(ctx, userID, id)
	})
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		uierrors.NotFound(w, "Task not found.")
	case err != nil:
		h.ErrLog.LogServerError(w, r, "delete task", err, "Unable to delete task.")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
