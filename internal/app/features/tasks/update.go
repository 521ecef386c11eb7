// internal/app/features/tasks/update.go
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/htmlsanitize"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/limits"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
)

// updateInput is a partial update. An explicit "due_date": null clears the
// due date; an absent key leaves it alone.
type updateInput struct {
	Title     *string         `json:"title,omitempty"`
	Completed *bool           `json:"completed,omitempty"`
	DueDate   json.RawMessage `json:"due_date,omitempty"`
}

// HandleUpdate handles PATCH /tasks/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
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

	var in updateInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "update task: bad body", err, err.Error())
		return
	}

	var (
		u   taskstore.Update
		res inputval.Result
	)
	if in.Title != nil {
		title := htmlsanitize.Text(*in.Title)
		res.Required("title", title)
		res.MaxLen("title", title, limits.MaxTitleLen)
		u.Title = &title
	}
	u.Completed = in.Completed
	switch {
	case in.DueDate == nil:
	case bytes.Equal(in.DueDate, []byte("null")):
		u.ClearDueDate = true
	default:
		var raw string
		if err := json.Unmarshal(in.DueDate, &raw); err != nil {
			res.Add("due_date", inputval.ErrBadDate.Error())
			break
		}
		due, err := inputval.ParseDate(raw)
		if err != nil {
			res.Add("due_date", err.Error())
			break
		}
		u.DueDate = &due
	}
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var task models.Task
	err = h.write(ctx, userID, func(ctx context.Context) error {
		var err error
		task, err = h.Tasks.Update(ctx, userID, id, u)
		return err
	})
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		uierrors.NotFound(w, "Task not found.")
	case errors.Is(err, taskstore.ErrTitleRequired):
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.ErrLog.LogServerError(w, r, "update task", err, "Unable to update task.")
	default:
		uierrors.WriteJSON(w, http.StatusOK, task)
	}
}
