// Package csrfguard protects cookie-authenticated, state-changing requests
// with gorilla/csrf. Clients read a token from GET /csrf and echo it in the
// X-CSRF-Token header on every POST, PUT, PATCH, and DELETE.
package csrfguard

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// HeaderName is the request header that carries the token.
const HeaderName = "X-CSRF-Token"

// CookieName is the cookie holding the masked token secret.
const CookieName = "sheltr-csrf"

// Config controls the CSRF cookie.
type Config struct {
	// Secret is hashed into the 32-byte token key; the session key is used.
	Secret string
	// Secure marks the cookie Secure and enables Origin/Referer checks.
	// When false, requests are treated as plain HTTP (local development).
	Secure bool
	Domain string
}

// Middleware returns the CSRF protection middleware. Rejections answer 403
// with a JSON error body.
func Middleware(cfg Config, logger *zap.Logger) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte("csrf:" + cfg.Secret))

	opts := []csrf.Option{
		csrf.CookieName(CookieName),
		csrf.RequestHeader(HeaderName),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.Secure(cfg.Secure),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("csrf check failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(csrf.FailureReason(r)))
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Missing or invalid CSRF token."})
		})),
	}
	if cfg.Domain != "" {
		opts = append(opts, csrf.Domain(cfg.Domain))
	}
	protect := csrf.Protect(key[:], opts...)

	return func(next http.Handler) http.Handler {
		h := protect(next)
		if cfg.Secure {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// tokenResponse is the body of GET /csrf.
type tokenResponse struct {
	Token  string `json:"csrf_token"`
	Header string `json:"header"`
}

// ServeToken handles GET /csrf. It must run behind Middleware.
func ServeToken(w http.ResponseWriter, r *http.Request) {
	token := csrf.Token(r)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(HeaderName, token)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Header: HeaderName})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
