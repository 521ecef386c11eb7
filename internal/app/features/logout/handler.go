// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ViewCloser unmounts every dashboard view a user holds.
type ViewCloser interface {
	CloseUser(userID primitive.ObjectID) int
}

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	Views      ViewCloser
	Audit      *auditlog.Logger
}

// NewHandler constructs a logout Handler. views and audit may be nil.
func NewHandler(sessionMgr *auth.SessionManager, views ViewCloser, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		Views:      views,
		Audit:      audit,
	}
}

// ServeLogout handles POST /logout. It clears the session cookie and
// unmounts the user's dashboard views.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	if uid, ok := auth.CurrentUserID(r); ok {
		if h.Views != nil {
			if n := h.Views.CloseUser(uid); n > 0 {
				h.Log.Debug("closed dashboard views on logout",
					zap.String("user_id", uid.Hex()), zap.Int("count", n))
			}
		}
		h.Audit.Logout(r.Context(), r, uid)
	}

	if err := h.SessionMgr.Logout(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}
