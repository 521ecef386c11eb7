// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/sheltrhq/sheltr/internal/app/features/dashboard"
	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/budget"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"github.com/sheltrhq/sheltr/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	SheltrMongoClient   *mongo.Client
	SheltrMongoDatabase *mongo.Database

	// Runtime is allocated by ConnectDB and filled in by Startup, so the
	// later hooks (which receive DBDeps by value) share one instance.
	Runtime *Runtime
}

// Runtime holds the long-lived in-process services built at Startup.
type Runtime struct {
	Views        *dashboard.Registry
	Budgets      *budget.Store
	Audit        *auditlog.Logger
	LoginLimiter *ratelimit.LoginLimiter
	SyncLimiter  *ratelimit.Limiter
	Syncer       *banksync.Syncer // nil when no bank provider is configured

	refresher *workers.SnapshotRefresher
	reaper    *workers.ViewReaper
	bankSync  *workers.BankSync
}
