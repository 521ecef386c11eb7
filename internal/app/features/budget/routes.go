// internal/app/features/budget/routes.go
package budget

import (
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
)

// Routes mounts GET and PUT at the base path (typically "/budget").
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeBudget)
	r.Put("/", h.HandleSet)
	return r
}
