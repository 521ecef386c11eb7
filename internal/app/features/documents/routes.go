// internal/app/features/documents/routes.go
package documents

import (
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
)

// Routes mounts the document endpoints (typically at "/documents").
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
