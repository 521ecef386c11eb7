// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/sheltrhq/sheltr/internal/app/system/inputval"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Sheltr.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: SHELTR_MONGO_URI, SHELTR_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "sheltr", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "sheltr-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 720h)"},

	// Dashboard
	{Name: "snapshot_refresh_interval", Default: "1m", Desc: "How often stale dashboard snapshots are rebuilt"},
	{Name: "snapshot_refresh_batch", Default: 200, Desc: "Most snapshots rebuilt per refresh pass"},
	{Name: "dashboard_view_idle", Default: "10m", Desc: "Unmount dashboard views idle this long"},
	{Name: "dashboard_max_views", Default: 8, Desc: "Mounted dashboard views per user"},

	// Bank provider
	{Name: "bank_api_url", Default: "", Desc: "Bank provider base URL (blank disables bank sync)"},
	{Name: "bank_client_id", Default: "", Desc: "Bank provider OAuth2 client ID"},
	{Name: "bank_client_secret", Default: "", Desc: "Bank provider OAuth2 client secret"},
	{Name: "bank_token_url", Default: "", Desc: "Bank provider OAuth2 token URL"},
	{Name: "bank_sync_interval", Default: "6h", Desc: "Background bank sync interval (0 disables)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_account", Default: "all", Desc: "Account event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, SHELTR_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "SHELTR", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		SnapshotRefreshInterval: appValues.Duration("snapshot_refresh_interval", time.Minute),
		SnapshotRefreshBatch:    int64(appValues.Int("snapshot_refresh_batch")),
		DashboardViewIdle:       appValues.Duration("dashboard_view_idle", 10*time.Minute),
		DashboardMaxViews:       appValues.Int("dashboard_max_views"),

		BankAPIURL:       appValues.String("bank_api_url"),
		BankClientID:     appValues.String("bank_client_id"),
		BankClientSecret: appValues.String("bank_client_secret"),
		BankTokenURL:     appValues.String("bank_token_url"),
		BankSyncInterval: appValues.Duration("bank_sync_interval", 6*time.Hour),

		AuditLogAuth:    appValues.String("audit_log_auth"),
		AuditLogAccount: appValues.String("audit_log_account"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is checked before any connection is attempted, and a
// configured bank provider must be complete.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return fmt.Errorf("mongo_database is required")
	}
	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in prod")
	}
	if appCfg.SnapshotRefreshInterval <= 0 {
		return fmt.Errorf("snapshot_refresh_interval must be positive")
	}
	if appCfg.DashboardViewIdle <= 0 {
		return fmt.Errorf("dashboard_view_idle must be positive")
	}

	if !appCfg.BankSyncEnabled() {
		return nil
	}
	if !inputval.IsValidHTTPURL(appCfg.BankAPIURL) {
		return fmt.Errorf("bank_api_url is not a valid http(s) URL: %q", appCfg.BankAPIURL)
	}
	if !inputval.IsValidHTTPURL(appCfg.BankTokenURL) {
		return fmt.Errorf("bank_token_url is not a valid http(s) URL: %q", appCfg.BankTokenURL)
	}
	if appCfg.BankClientID == "" || appCfg.BankClientSecret == "" {
		return fmt.Errorf("bank_client_id and bank_client_secret are required when bank_api_url is set")
	}
	return nil
}
