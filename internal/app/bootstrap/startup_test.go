package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/waffle/config"
	"github.com/sheltrhq/sheltr/internal/app/system/csrfguard"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:                "mongodb://localhost:27017",
		MongoDatabase:           "sheltr_test",
		SessionKey:              strings.Repeat("k", 32),
		SessionMaxAge:           time.Hour,
		SnapshotRefreshInterval: time.Minute,
		DashboardViewIdle:       10 * time.Minute,
		AuditLogAuth:            "off",
		AuditLogAccount:         "off",
	}
}

func TestValidateConfig(t *testing.T) {
	withBank := func(c AppConfig) AppConfig {
		c.BankAPIURL = "https://bank.example.com/v1"
		c.BankTokenURL = "https://bank.example.com/oauth/token"
		c.BankClientID = "client"
		c.BankClientSecret = "secret"
		return c
	}

	tests := []struct {
		name    string
		env     string
		mutate  func(AppConfig) AppConfig
		wantErr bool
	}{
		{"defaults", "dev", func(c AppConfig) AppConfig { return c }, false},
		{"no database", "dev", func(c AppConfig) AppConfig { c.MongoDatabase = ""; return c }, true},
		{"short key in prod", "prod", func(c AppConfig) AppConfig { c.SessionKey = "short"; return c }, true},
		{"short key in dev", "dev", func(c AppConfig) AppConfig { c.SessionKey = "short"; return c }, false},
		{"zero refresh interval", "dev", func(c AppConfig) AppConfig { c.SnapshotRefreshInterval = 0; return c }, true},
		{"zero view idle", "dev", func(c AppConfig) AppConfig { c.DashboardViewIdle = 0; return c }, true},
		{"bank complete", "dev", withBank, false},
		{"bank bad url", "dev", func(c AppConfig) AppConfig {
			c = withBank(c)
			c.BankAPIURL = "ftp://bank"
			return c
		}, true},
		{"bank missing secret", "dev", func(c AppConfig) AppConfig {
			c = withBank(c)
			c.BankClientSecret = ""
			return c
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, tt.mutate(validAppConfig()), testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig: err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestReapInterval(t *testing.T) {
	tests := []struct {
		idle time.Duration
		want time.Duration
	}{
		{10 * time.Minute, time.Minute},
		{2 * time.Minute, 30 * time.Second},
		{time.Second, time.Second},
	}
	for _, tt := range tests {
		if got := reapInterval(tt.idle); got != tt.want {
			t.Errorf("reapInterval(%v): got %v, want %v", tt.idle, got, tt.want)
		}
	}
}

func TestBuildRuntime_WithoutBank(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validAppConfig()
	cfg.DashboardMaxViews = 3
	rt, err := buildRuntime(ctx, cfg, DBDeps{SheltrMongoDatabase: db}, testLogger())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if rt.Views == nil || rt.Budgets == nil || rt.Audit == nil || rt.LoginLimiter == nil || rt.SyncLimiter == nil {
		t.Fatalf("runtime not fully built: %+v", rt)
	}
	if rt.Syncer != nil || rt.bankSync != nil {
		t.Error("bank sync should be disabled without bank_api_url")
	}
	if rt.refresher == nil || rt.reaper == nil {
		t.Error("expected snapshot refresher and view reaper")
	}
}

func TestBuildRuntime_WithBank(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validAppConfig()
	cfg.BankAPIURL = "https://bank.example.com/v1"
	cfg.BankTokenURL = "https://bank.example.com/oauth/token"
	cfg.BankClientID = "client"
	cfg.BankClientSecret = "secret"
	cfg.BankSyncInterval = time.Hour

	rt, err := buildRuntime(ctx, cfg, DBDeps{SheltrMongoDatabase: db}, testLogger())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	if rt.Syncer == nil || rt.bankSync == nil {
		t.Error("expected bank syncer and worker")
	}
}

func TestStartupAndShutdown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{SheltrMongoDatabase: db, Runtime: &Runtime{}}
	if err := Startup(ctx, &config.CoreConfig{Env: "dev"}, validAppConfig(), deps, testLogger()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if deps.Runtime.Views == nil {
		t.Fatal("Startup should populate the shared runtime")
	}
	// Client is nil so Shutdown only stops the workers.
	if err := Shutdown(ctx, nil, validAppConfig(), deps, testLogger()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{SheltrMongoClient: db.Client(), SheltrMongoDatabase: db, Runtime: &Runtime{}}
	rt, err := buildRuntime(ctx, validAppConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	*deps.Runtime = *rt

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validAppConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/health", http.StatusOK},
		{"GET", "/csrf", http.StatusOK},
		{"GET", "/me", http.StatusUnauthorized},
		{"GET", "/account/activity", http.StatusUnauthorized},
		{"GET", "/tasks", http.StatusUnauthorized},
		{"GET", "/documents", http.StatusUnauthorized},
		{"GET", "/expenses", http.StatusUnauthorized},
		{"GET", "/budget", http.StatusUnauthorized},
		{"GET", "/banking/links", http.StatusUnauthorized},
		{"POST", "/dashboard/views", http.StatusForbidden},
		{"POST", "/logout", http.StatusForbidden},
		{"GET", "/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestBuildHandler_CSRFTokenUnlocksWrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{SheltrMongoClient: db.Client(), SheltrMongoDatabase: db, Runtime: &Runtime{}}
	rt, err := buildRuntime(ctx, validAppConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	*deps.Runtime = *rt

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validAppConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/csrf", nil))
	token := rec.Header().Get(csrfguard.HeaderName)
	if token == "" {
		t.Fatal("GET /csrf returned no token")
	}

	// With the token the request reaches the auth check.
	req := httptest.NewRequest("POST", "/dashboard/views", nil)
	req.Header.Set(csrfguard.HeaderName, token)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /dashboard/views with token: got %d, want 401", rec.Code)
	}
}

func TestBuildHandler_RequiresRuntime(t *testing.T) {
	if _, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validAppConfig(), DBDeps{}, testLogger()); err == nil {
		t.Error("expected an error without a started runtime")
	}
}
