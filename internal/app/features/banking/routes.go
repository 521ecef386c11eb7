// internal/app/features/banking/routes.go
package banking

import (
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
)

// Routes mounts the bank link endpoints (typically at "/banking").
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/links", h.ServeList)
	r.Post("/links", h.HandleCreate)
	r.Post("/links/{id}/sync", h.HandleSync)
	return r
}
