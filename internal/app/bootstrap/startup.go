// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	"github.com/sheltrhq/sheltr/internal/app/features/dashboard"
	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	settingsstore "github.com/sheltrhq/sheltr/internal/app/store/settings"
	"github.com/sheltrhq/sheltr/internal/app/system/auditlog"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/budget"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/app/system/workers"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the shared in-process services and starts the background workers.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return fmt.Errorf("startup: DBDeps.Runtime is nil")
	}
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment", zap.Int("count", n))
	}

	rt, err := buildRuntime(ctx, appCfg, deps, logger)
	if err != nil {
		return err
	}
	*deps.Runtime = *rt
	deps.Runtime.start()
	return nil
}

// buildRuntime wires the services without starting any goroutines.
func buildRuntime(ctx context.Context, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Runtime, error) {
	db := deps.SheltrMongoDatabase
	clk := clock.System{}

	rt := &Runtime{
		Views:        dashboard.NewRegistry(clk, logger),
		Budgets:      budget.New(settingsstore.New(db)),
		LoginLimiter: ratelimit.NewLoginLimiter(),
		SyncLimiter:  ratelimit.New(6, time.Minute),
		Audit: auditlog.New(audit.New(db), logger, auditlog.Config{
			Auth:    appCfg.AuditLogAuth,
			Account: appCfg.AuditLogAccount,
		}),
	}
	if appCfg.DashboardMaxViews > 0 {
		rt.Views.SetMaxPerUser(appCfg.DashboardMaxViews)
	}

	metrics := metricsstore.New(db)
	rt.refresher = workers.NewSnapshotRefresher(metrics, clk, logger,
		appCfg.SnapshotRefreshInterval, appCfg.SnapshotRefreshBatch)
	rt.reaper = workers.NewViewReaper(rt.Views, logger,
		reapInterval(appCfg.DashboardViewIdle), appCfg.DashboardViewIdle, rt.LoginLimiter, rt.SyncLimiter)

	if !appCfg.BankSyncEnabled() {
		logger.Info("bank sync disabled (no bank_api_url)")
		return rt, nil
	}

	provider, err := banksync.NewHTTPProvider(ctx, banksync.HTTPConfig{
		BaseURL:      appCfg.BankAPIURL,
		ClientID:     appCfg.BankClientID,
		ClientSecret: appCfg.BankClientSecret,
		TokenURL:     appCfg.BankTokenURL,
	})
	if err != nil {
		return nil, fmt.Errorf("bank provider: %w", err)
	}
	links := banklinkstore.New(db)
	rt.Syncer = &banksync.Syncer{
		Links:    links,
		Expenses: expensestore.New(db),
		Dirty:    metrics,
		Provider: provider,
		Logger:   logger,
	}
	if appCfg.BankSyncInterval > 0 {
		auditLog := rt.Audit
		record := func(ctx context.Context, link models.BankLink, res banksync.Result, err error) {
			auditLog.BankSync(ctx, nil, link.UserID, link.ID, res.Upserted, res.Removed, err)
		}
		rt.bankSync = workers.NewBankSync(links, rt.Syncer, record, logger, appCfg.BankSyncInterval)
	}
	return rt, nil
}

// reapInterval sweeps a few times per idle window, at most once a minute.
func reapInterval(idle time.Duration) time.Duration {
	iv := idle / 4
	if iv > time.Minute {
		iv = time.Minute
	}
	if iv < time.Second {
		iv = time.Second
	}
	return iv
}

func (rt *Runtime) start() {
	if rt.refresher != nil {
		rt.refresher.Start()
	}
	if rt.reaper != nil {
		rt.reaper.Start()
	}
	if rt.bankSync != nil {
		rt.bankSync.Start()
	}
}

// stop halts the workers, then unmounts every dashboard view.
func (rt *Runtime) stop(logger *zap.Logger) {
	if rt.bankSync != nil {
		rt.bankSync.Stop()
	}
	if rt.reaper != nil {
		rt.reaper.Stop()
	}
	if rt.refresher != nil {
		rt.refresher.Stop()
	}
	if rt.Views != nil {
		if n := rt.Views.CloseAll(); n > 0 {
			logger.Info("unmounted dashboard views", zap.Int("count", n))
		}
	}
}
