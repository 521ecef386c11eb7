package auth_test

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The email address users type to log in

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"go.uber.org/zap"
)

const testUserID = "507f1f77bcf86cd799439011"

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		logger,
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

func TestNewSessionManager_EmptyKey(t *testing.T) {
	_, err := auth.NewSessionManager("", "s", "", time.Hour, false, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for empty session key")
	}
}

func TestRequireSignedIn_NoUser_RedirectsToLogin(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("protected content"))
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}

	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/login") {
		t.Errorf("expected redirect to /login, got %q", location)
	}
}

func TestRequireSignedIn_NoUser_API_Returns401(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireSignedIn_NoUser_HTMX_ReturnsHXRedirect(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	hxRedirect := rec.Header().Get("HX-Redirect")
	if !strings.HasPrefix(hxRedirect, "/login") {
		t.Errorf("expected HX-Redirect to /login, got %q", hxRedirect)
	}
}

func TestRequireSignedIn_MalformedID_Rejected(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard/metrics", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{ID: "not-an-object-id"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireSignedIn_WithUser_Proceeds(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := withTestUser(httptest.NewRequest("GET", "/dashboard", nil))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestLogin_CookieRoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)

	loginRec := httptest.NewRecorder()
	loginReq := httptest.NewRequest("POST", "/login", nil)
	err := sm.Login(loginRec, loginReq, auth.SessionUser{ID: testUserID, Name: "Ada", LoginID: "ada@example.com"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	cookies := loginRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	var got *auth.SessionUser
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.CurrentUser(r)
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatal("expected user loaded from session")
	}
	if got.ID != testUserID || got.LoginID != "ada@example.com" {
		t.Errorf("unexpected session user: %+v", got)
	}
}

func TestLogin_CookieIsLaxInProd(t *testing.T) {
	sm, err := auth.NewSessionManager("test-session-key-must-be-32-chars-long", "test-session", "", time.Hour, true, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := sm.Login(rec, httptest.NewRequest("POST", "/login", nil), auth.SessionUser{ID: testUserID, LoginID: "ada@example.com"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}
	c := cookies[0]
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite: got %v, want Lax", c.SameSite)
	}
	if !c.Secure || !c.HttpOnly {
		t.Errorf("expected Secure and HttpOnly, got secure=%v httponly=%v", c.Secure, c.HttpOnly)
	}
}

func TestLoadSessionUser_TamperedCookie(t *testing.T) {
	sm := newTestSessionManager(t)

	var found bool
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = auth.CurrentUser(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "test-session", Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if found {
		t.Error("tampered cookie must not yield a user")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected request to proceed, got %d", rec.Code)
	}
}

func TestLogout_ExpiresCookie(t *testing.T) {
	sm := newTestSessionManager(t)

	rec := httptest.NewRecorder()
	if err := sm.Logout(rec, httptest.NewRequest("POST", "/logout", nil)); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected expired cookie, got %+v", cookies)
	}
}

func TestCurrentUser_NoUser(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)

	user, ok := auth.CurrentUser(req)

	if ok {
		t.Error("expected ok to be false when no user in context")
	}
	if user != nil {
		t.Error("expected user to be nil when no user in context")
	}
}

func TestCurrentUserID_WithUser(t *testing.T) {
	req := withTestUser(httptest.NewRequest("GET", "/", nil))

	id, ok := auth.CurrentUserID(req)

	if !ok {
		t.Fatal("expected ok to be true when user in context")
	}
	if id.Hex() != testUserID {
		t.Errorf("expected id %s, got %s", testUserID, id.Hex())
	}
}

func TestGenerateKey_Length(t *testing.T) {
	if k := auth.GenerateKey(); len(k) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(k))
	}
}

// withTestUser injects a SessionUser into the request context for testing.
// This simulates what LoadSessionUser middleware does.
func withTestUser(r *http.Request) *http.Request {
	user := &auth.SessionUser{
		ID:      testUserID,
		Name:    "Test User",
		LoginID: "test@example.com",
	}
	return auth.WithTestUser(r, user)
}
