// internal/app/features/banking/handler.go
package banking

import (
	"context"
	"errors"
	"net/http"
	"time"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/htmlsanitize"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"github.com/sheltrhq/sheltr/internal/app/system/limits"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Syncer runs one bank sync. *banksync.Syncer satisfies it.
type Syncer interface {
	Sync(ctx context.Context, linkID primitive.ObjectID) (banksync.Result, error)
}

// Handler serves bank links. Syncer is nil when no provider is configured;
// links can still be recorded but not synced.
type Handler struct {
	Links   *banklinkstore.Store
	Syncer  Syncer
	Limiter *ratelimit.Limiter
	Audit   *auditlog.Logger
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger
}

// NewHandler builds a Handler. Manual syncs are limited to 6 per user per
// minute.
func NewHandler(db *mongo.Database, syncer Syncer, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Links:   banklinkstore.New(db),
		Syncer:  syncer,
		Limiter: ratelimit.New(6, time.Minute),
		Audit:   audit,
		ErrLog:  errLog,
		Log:     logger,
	}
}

// ServeList handles GET /banking/links.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	links, err := h.Links.List(ctx, userID)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "list bank links", err, "Unable to load bank links.")
		return
	}
	if links == nil {
		links = []models.BankLink{}
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"links": links})
}

type createInput struct {
	Institution string `json:"institution"`
	AccessToken string `json:"access_token"`
}

// HandleCreate handles POST /banking/links. The access token comes from
// the provider's link flow, which happens outside this service.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}

	var in createInput
	if err := uierrors.DecodeJSON(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "create bank link: bad body", err, err.Error())
		return
	}
	institution := htmlsanitize.Text(in.Institution)

	var res inputval.Result
	res.Required("institution", institution)
	res.MaxLen("institution", institution, limits.MaxInstitutionLen)
	res.Required("access_token", in.AccessToken)
	if res.HasErrors() {
		uierrors.WriteError(w, http.StatusBadRequest, res.All())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	link, err := h.Links.Create(ctx, userID, institution, in.AccessToken)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "create bank link", err, "Unable to save bank link.")
		return
	}
	h.Audit.BankLinkCreated(r.Context(), r, userID, link.ID, institution)

	uierrors.WriteJSON(w, http.StatusCreated, link)
}

// HandleSync handles POST /banking/links/{id}/sync.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r)
	if !ok {
		uierrors.Unauthorized(w)
		return
	}
	id, err := inputval.ObjectIDParam(r, "id")
	if err != nil {
		uierrors.WriteError(w, http.StatusBadRequest, "Invalid bank link ID.")
		return
	}
	if h.Syncer == nil {
		uierrors.WriteError(w, http.StatusServiceUnavailable, "Bank sync is not configured.")
		return
	}

	lookupCtx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	if _, err := h.Links.Get(lookupCtx, userID, id); err != nil {
		if errors.Is(err, banklinkstore.ErrNotFound) {
			uierrors.NotFound(w, "Bank link not found.")
			return
		}
		h.ErrLog.LogServerError(w, r, "get bank link", err, "Unable to load bank link.")
		return
	}

	if !h.Limiter.Allow(userID.Hex()) {
		uierrors.WriteError(w, http.StatusTooManyRequests, "Too many sync requests. Please wait a minute.")
		return
	}

	syncCtx, syncCancel := context.WithTimeout(r.Context(), timeouts.Sync())
	defer syncCancel()

	res, err := h.Syncer.Sync(syncCtx, id)
	if errors.Is(err, banklinkstore.ErrSyncInProgress) {
		uierrors.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	h.Audit.BankSync(r.Context(), r, userID, id, res.Upserted, res.Removed, err)

	switch {
	case errors.Is(err, banksync.ErrProvider):
		h.Log.Warn("bank provider rejected sync", zap.String("bank_link_id", id.Hex()), zap.Error(err))
		uierrors.WriteError(w, http.StatusBadGateway, "The bank provider returned an error.")
	case err != nil:
		h.ErrLog.LogServerError(w, r, "bank sync", err, "Bank sync failed.")
	default:
		uierrors.WriteJSON(w, http.StatusOK, res)
	}
}
