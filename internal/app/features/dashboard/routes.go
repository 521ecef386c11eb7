// internal/app/features/dashboard/routes.go
package dashboard

import (
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
)

// Routes wires the dashboard under whatever mount point the top-level
// router chooses (e.g., "/dashboard"). Every route requires a signed-in
// user, and a view can only be reached by the user who mounted it.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/metrics", h.ServeMetrics)

	r.Post("/views", h.HandleMount)
	r.Get("/views/{id}", h.ServeView)
	r.Post("/views/{id}/refresh", h.HandleRefresh)
	r.Post("/views/{id}/refresh-live", h.HandleRefreshLive)
	r.Get("/views/{id}/events", h.ServeEvents)
	r.Delete("/views/{id}", h.HandleUnmount)
	return r
}
