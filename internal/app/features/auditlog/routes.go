// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
)

// Routes mounts the activity feed where this router is mounted
// (typically "/account/activity" from bootstrap).
//
// Users only ever see events recorded against their own id.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Get("/", h.ServeList)
	})

	return r
}
