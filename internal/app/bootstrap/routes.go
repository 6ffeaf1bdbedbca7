// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	adminfeature "github.com/dalemusser/stratarecipe/internal/app/features/admin"
	commentsfeature "github.com/dalemusser/stratarecipe/internal/app/features/comments"
	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratarecipe/internal/app/features/health"
	profilefeature "github.com/dalemusser/stratarecipe/internal/app/features/profile"
	recipesfeature "github.com/dalemusser/stratarecipe/internal/app/features/recipes"
	usersfeature "github.com/dalemusser/stratarecipe/internal/app/features/users"
	"github.com/dalemusser/stratarecipe/internal/app/store/audit"
	ledgerstore "github.com/dalemusser/stratarecipe/internal/app/store/ledger"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/apicors"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/ledger"
	"github.com/dalemusser/stratarecipe/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed.
//
// Layout:
//   - /health, /ready, /readyz, /livez: unauthenticated probes
//   - /metrics: Prometheus collectors
//   - /api/*: API key auth, acting user from the X-User-ID header; failed
//     requests are recorded in the ledger
//
// Requests under /api/me and /api/admin can run a whole propagation or
// repair pass, so they get batch_timeout instead of request_timeout.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	if propagator == nil {
		propagator = newPropagator(db, appCfg, logger)
	}

	// Create error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	// Create audit store and logger for content and admin event tracking.
	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Content: appCfg.AuditLogContent,
		Profile: appCfg.AuditLogProfile,
		Admin:   appCfg.AuditLogAdmin,
	})

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	errorsHandler := errorsfeature.NewHandler()
	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	// ─────────────────────────────────────────────────────────────────────────────
	// Probes and metrics
	// ─────────────────────────────────────────────────────────────────────────────

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", metrics.Handler())

	// ─────────────────────────────────────────────────────────────────────────────
	// API Routes
	// ─────────────────────────────────────────────────────────────────────────────

	recipesHandler := recipesfeature.NewHandler(db, auditLogger, errLog, appCfg.RecipesPerPage, logger)
	commentsHandler := commentsfeature.NewHandler(db, auditLogger, errLog, appCfg.CommentMaxLength, logger)
	usersHandler := usersfeature.NewHandler(db, errLog, auditLogger, logger)
	profileHandler := profilefeature.NewHandler(db, propagator, auditLogger, errLog, logger)

	// taskRunner is nil when Startup did not run; the admin API then reports
	// background tasks as disabled.
	var runner adminfeature.TaskRunner
	if taskRunner != nil {
		runner = taskRunner
	}
	adminHandler := adminfeature.NewHandler(db, propagator, runner, auditLogger, errLog, logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(apicors.Middleware(appCfg.CORSOrigins...))
		if appCfg.LedgerEnabled {
			api.Use(ledger.Middleware(ledger.DefaultConfig(ledgerstore.New(db), logger)))
		}
		api.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
		api.Use(auth.LoadActor(userstore.NewFetcher(db, logger), logger))

		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(appCfg.RequestTimeout))
			g.Mount("/recipes", recipesfeature.Routes(recipesHandler))
			g.Mount("/me/recipes", recipesfeature.MineRoutes(recipesHandler))
			g.Mount("/comments", commentsfeature.Routes(commentsHandler))
			g.Mount("/users", usersfeature.Routes(usersHandler))
		})

		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(appCfg.BatchTimeout))
			g.Mount("/me", profilefeature.Routes(profileHandler))
			g.Mount("/admin", adminfeature.Routes(adminHandler))
		})
	})

	return r, nil
}
