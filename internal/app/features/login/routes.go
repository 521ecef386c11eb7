// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes serves POST /login.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleLogin)
	return r
}

// SignupRoutes serves POST /signup.
func SignupRoutes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleSignup)
	return r
}
