// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig carries what is specific to Sheltr: the MongoDB connection,
// session cookies, dashboard worker cadence, the bank provider endpoint,
// and audit logging.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: sheltr-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Dashboard
	SnapshotRefreshInterval time.Duration // How often dirty or last-month snapshots are rebuilt
	SnapshotRefreshBatch    int64         // Most snapshots rebuilt per pass
	DashboardViewIdle       time.Duration // Mounted views without a stream are unmounted after this
	DashboardMaxViews       int           // Mounted views per user before the oldest is evicted

	// Bank provider (bank sync is disabled when BankAPIURL is blank)
	BankAPIURL       string
	BankClientID     string
	BankClientSecret string
	BankTokenURL     string
	BankSyncInterval time.Duration // 0 disables the background sync worker

	// Audit logging: "all", "db", "log", or "off"
	AuditLogAuth    string
	AuditLogAccount string
}

// BankSyncEnabled reports whether a bank provider is configured.
func (c AppConfig) BankSyncEnabled() bool {
	return c.BankAPIURL != ""
}
