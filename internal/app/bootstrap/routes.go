// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	activityfeature "github.com/sheltrhq/sheltr/internal/app/features/auditlog"
	bankingfeature "github.com/sheltrhq/sheltr/internal/app/features/banking"
	budgetfeature "github.com/sheltrhq/sheltr/internal/app/features/budget"
	dashboardfeature "github.com/sheltrhq/sheltr/internal/app/features/dashboard"
	documentsfeature "github.com/sheltrhq/sheltr/internal/app/features/documents"
	errorsfeature "github.com/sheltrhq/sheltr/internal/app/features/errors"
	expensesfeature "github.com/sheltrhq/sheltr/internal/app/features/expenses"
	healthfeature "github.com/sheltrhq/sheltr/internal/app/features/health"
	loginfeature "github.com/sheltrhq/sheltr/internal/app/features/login"
	logoutfeature "github.com/sheltrhq/sheltr/internal/app/features/logout"
	tasksfeature "github.com/sheltrhq/sheltr/internal/app/features/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/auth"
	"github.com/sheltrhq/sheltr/internal/app/system/changefeed"
	"github.com/sheltrhq/sheltr/internal/app/system/clock"
	"github.com/sheltrhq/sheltr/internal/app/system/csrfguard"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so deps.Runtime is populated.
//
// Sheltr applies session and CSRF middleware globally and mounts one JSON
// router per feature: health, login/signup/logout, account activity, tasks, documents,
// expenses, budget, banking, and the dashboard.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Views == nil {
		return nil, fmt.Errorf("build handler: runtime not started")
	}
	db := deps.SheltrMongoDatabase

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	clk := clock.System{}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// Unsafe methods must echo the token from GET /csrf.
	r.Use(csrfguard.Middleware(csrfguard.Config{
		Secret: appCfg.SessionKey,
		Secure: secure,
		Domain: appCfg.SessionDomain,
	}, logger))
	r.Get("/csrf", csrfguard.ServeToken)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.SheltrMongoClient, rt.Views, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Authentication
	loginHandler := loginfeature.NewHandler(db, sessionMgr, rt.LoginLimiter, rt.Audit, errLog, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))
	r.Mount("/signup", loginfeature.SignupRoutes(loginHandler))
	r.With(sessionMgr.RequireSignedIn).Get("/me", loginHandler.ServeMe)

	activityHandler := activityfeature.NewHandler(db, errLog, logger)
	r.Mount("/account/activity", activityfeature.Routes(activityHandler, sessionMgr))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, rt.Views, rt.Audit, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Records
	tasksHandler := tasksfeature.NewHandler(db, errLog, logger)
	r.Mount("/tasks", tasksfeature.Routes(tasksHandler, sessionMgr))

	documentsHandler := documentsfeature.NewHandler(db, errLog, logger)
	r.Mount("/documents", documentsfeature.Routes(documentsHandler, sessionMgr))

	expensesHandler := expensesfeature.NewHandler(db, clk, errLog, logger)
	r.Mount("/expenses", expensesfeature.Routes(expensesHandler, sessionMgr))

	budgetHandler := budgetfeature.NewHandler(rt.Budgets, rt.Audit, errLog, logger)
	r.Mount("/budget", budgetfeature.Routes(budgetHandler, sessionMgr))

	// Bank links; sync answers 503 when no provider is configured.
	var syncer bankingfeature.Syncer
	if rt.Syncer != nil {
		syncer = rt.Syncer
	}
	bankingHandler := bankingfeature.NewHandler(db, syncer, rt.Audit, errLog, logger)
	if rt.SyncLimiter != nil {
		bankingHandler.Limiter = rt.SyncLimiter
	}
	r.Mount("/banking", bankingfeature.Routes(bankingHandler, sessionMgr))

	// Dashboard
	dashboardHandler := dashboardfeature.NewHandler(db, rt.Views, rt.Budgets,
		changefeed.New(db, logger), clk, errLog, logger)
	r.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, sessionMgr))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		errorsfeature.NotFound(w, "not found")
	})

	return r, nil
}
