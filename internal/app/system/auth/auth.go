package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	DefaultSessionName = "sheltr-session"

	isAuthKey   = "is_authenticated"
	userIDKey   = "user_id"
	userNameKey = "user_name"
	loginIDKey  = "login_id"
	signedInKey = "signed_in_at"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is what we cache in the session & inject into r.Context().
type SessionUser struct {
	ID      string
	Name    string
	LoginID string
}

// ObjectID parses the user's id. ok is false for a malformed id.
func (u *SessionUser) ObjectID() (primitive.ObjectID, bool) {
	if u == nil {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// CurrentUserID returns the signed-in user's ObjectID.
func CurrentUserID(r *http.Request) (primitive.ObjectID, bool) {
	u, ok := CurrentUser(r)
	if !ok {
		return primitive.NilObjectID, false
	}
	return u.ObjectID()
}

// WithTestUser injects u into the request context, bypassing the session.
// Handler tests use it in place of LoadSessionUser.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session manager                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store and the middleware built on it.
type SessionManager struct {
	store  *sessions.CookieStore
	name   string
	logger *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager.
//
// In production (secure=true), cookies are Secure + SameSite=None.
// In local dev over http://localhost, use secure=false so cookies are accepted.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, logger: logger}, nil
}

// GenerateKey returns a random session key for local development.
func GenerateKey() string {
	return fmt.Sprintf("%x", securecookie.GenerateRandomKey(32))
}

// LoadSessionUser injects the user into context if they are logged in.
// A cookie that fails to decode (rotated key, tampering) is treated as
// signed out.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			var cerr securecookie.Error
			if errors.As(err, &cerr) && cerr.IsDecode() {
				m.logger.Debug("discarding undecodable session cookie", zap.Error(err))
			} else {
				m.logger.Warn("session load failed", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			u := &SessionUser{
				ID:      getString(sess, userIDKey),
				Name:    getString(sess, userNameKey),
				LoginID: getString(sess, loginIDKey),
			}
			r = withUser(r, u)
		}
		next.ServeHTTP(w, r)
	})
}

// Login writes u into a fresh session.
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{
		isAuthKey:   true,
		userIDKey:   u.ID,
		userNameKey: u.Name,
		loginIDKey:  u.LoginID,
		signedInKey: time.Now().UTC().Unix(),
	}
	return sess.Save(r, w)
}

// Logout clears the session cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, m.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// If not signed in:
//   - HTMX: sends HX-Redirect to /login?return=...
//   - HTML: 303 redirect to /login?return=...
//   - API:  401 Unauthorized with a plain error body.
func (m *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUserID(r); ok {
			next.ServeHTTP(w, r)
			return
		}

		ret := url.QueryEscape(currentURI(r))

		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", "/login?return="+ret)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if wantsHTML(r) {
			http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
			return
		}

		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}
