// internal/app/features/documents/handler.go
package documents

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	documentstore "github.com/sheltrhq/sheltr/internal/app/store/documents"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/htmlsanitize"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/limits"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/app/system/txn"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves document vault metadata. File contents are not stored
// here.
type Handler struct {
	DB        *mongo.Database
	Documents *documentstore.Store
	Metrics   *metricsstore.Store
	ErrLog    *uierrors.ErrorLogger
	Log       *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:        db,
		Documents: documentstore.New(db),
		Metrics:   metricsstore.New(db),
		ErrLog:    errLog,
		Log:       logger,
	}
}

// ServeList handles GET /documents, newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.Documents.List(ctx, userID)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "list documents", err, "Unable to load documents.")
		return
	}
	if list == nil {
		list = []models.Document{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"documents": list,
		"kinds":     models.DocumentKinds,
	})
}

type createInput struct {
	Title string `json:"title"`
	Kind  string `json:"kind,omitempty"`
}

// HandleCreate handles POST /documents.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	var in createInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "create document: bad body", err, err.Error())
		return
	}

	doc := models.Document{UserID: userID, Title: htmlsanitize.Text(in.Title), Kind: in.Kind}

	var res inputval.Result
	res.Required("title", doc.Title)
	res.MaxLen("title", doc.Title, limits.MaxTitleLen)
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	var created models.Document
	err := txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		var err error
		if created, err = h.Documents.Create(ctx, doc); err != nil {
			return err
		}
		return h.Metrics.MarkDirty(ctx, userID)
	})
	switch {
	case errors.Is(err, documentstore.ErrTitleRequired), errors.Is(err, documentstore.ErrBadKind):
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.ErrLog.LogServerError(w, r, "create document", err, "Unable to save document.")
	default:
		uierrors.WriteJSON(w, http.StatusCreated, created)
	}
}

// HandleDelete handles DELETE /documents/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	id, err := inputval.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "Invalid document ID.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err = txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := h.Documents.Delete(ctx, userID, id); err != nil {
			return err
		}
		return h.Metrics.MarkDirty(ctx, userID)
	})
	switch {
	case errors.Is(err, documentstore.ErrNotFound):
		uierrors.NotFound(w, "Document not found.")
	case err != nil:
		h.ErrLog.LogServerError(w, r, "delete document", err, "Unable to delete document.")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
