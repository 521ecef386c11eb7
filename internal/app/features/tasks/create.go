// internal/app/features/tasks/create.go
package tasks

import (
	"context"
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
	"go.uber.org/zap"
)

type createInput struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"`
}

// HandleCreate handles POST /tasks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	var in createInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "create task: bad body", err, err.Error())
		return
	}

	task := models.Task{UserID: userID, Title: htmlsanitize.Text(in.Title)}

	var res inputval.Result
	res.Required("title", task.Title)
	res.MaxLen("title", task.Title, limits.MaxTitleLen)
	if in.DueDate != "" {
		due, err := inputval.ParseDate(in.DueDate)
		if err != nil {
			res.Add("due_date", err.Error())
		} else {
			task.DueDate = &due
		}
	}
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var created models.Task
	err := h.write(ctx, userID, func(ctx context.Context) error {
		var err error
		created, err = h.Tasks.Create(ctx, task)
		return err
	})
	if errors.Is(err, taskstore.ErrTitleRequired) {
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.ErrLog.LogServerError(w, r, "create task", err, "Unable to create task.")
		return
	}

	h.Log.Debug("task created", zap.String("user_id", userID.Hex()), zap.String("task_id", created.ID.Hex()))
	uierrors.WriteJSON(w, http.StatusCreated, created)
}
