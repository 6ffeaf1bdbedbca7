// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/features/comments"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/propagation"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATARECIPE"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, api_key, etc.
//   - Environment variables: STRATARECIPE_MONGO_URI, STRATARECIPE_API_KEY, etc.
//   - Command-line flags: --mongo_uri, --api_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratarecipe", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "api_key", Default: "", Desc: "Bearer key required on every /api request (required in prod)"},
	{Name: "cors_origins", Default: "", Desc: "Comma-separated origins allowed to call the API (blank allows any)"},

	// Display name propagation
	{Name: "propagation_fanout", Default: 0, Desc: "Concurrent comment writes per propagation run (0 = unbounded)"},
	{Name: "propagation_item_attempts", Default: 3, Desc: "Attempts per comment write within one propagation pass"},
	{Name: "propagation_retry_delay", Default: "200ms", Desc: "Pause between attempts on the same comment"},
	{Name: "propagation_stale_after", Default: "5m", Desc: "Idle time before an unfinished run is reconciled"},

	// Background tasks
	{Name: "propagation_reconcile_interval", Default: "5m", Desc: "How often unfinished propagation runs are resumed (0 disables)"},
	{Name: "slug_repair_interval", Default: "10m", Desc: "How often placeholder slugs are repaired (0 disables)"},
	{Name: "slug_placeholder_grace", Default: "1m", Desc: "Minimum age of a placeholder slug before it is repaired"},
	{Name: "ledger_prune_interval", Default: "1h", Desc: "How often old ledger entries are pruned (0 disables)"},

	// API error ledger
	{Name: "ledger_enabled", Default: true, Desc: "Record failed API requests in the ledger"},
	{Name: "ledger_retention", Default: "720h", Desc: "How long ledger entries are kept"},

	// Request handling
	{Name: "recipes_per_page", Default: 12, Desc: "Page size of recipe listings"},
	{Name: "comment_max_length", Default: comments.DefaultMaxLength, Desc: "Maximum comment length in characters"},
	{Name: "request_timeout", Default: "30s", Desc: "Timeout for ordinary API requests"},
	{Name: "batch_timeout", Default: "5m", Desc: "Timeout for display name changes and admin maintenance"},

	// Audit logging settings
	{Name: "audit_log_content", Default: "all", Desc: "Recipe/comment event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_profile", Default: "all", Desc: "Profile event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Admin seeding configuration
	{Name: "seed_admin_email", Default: "", Desc: "Email of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Display name of admin user to create on startup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATARECIPE_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	defaults := propagation.DefaultConfig()
	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		APIKey:      appValues.String("api_key"),
		CORSOrigins: splitList(appValues.String("cors_origins")),

		// Propagation
		PropagationFanout:       appValues.Int("propagation_fanout"),
		PropagationItemAttempts: appValues.Int("propagation_item_attempts"),
		PropagationRetryDelay:   appValues.Duration("propagation_retry_delay", defaults.RetryDelay),
		PropagationStaleAfter:   appValues.Duration("propagation_stale_after", defaults.StaleAfter),

		// Background tasks
		PropagationReconcileInterval: appValues.Duration("propagation_reconcile_interval", 5*time.Minute),
		SlugRepairInterval:           appValues.Duration("slug_repair_interval", 10*time.Minute),
		SlugPlaceholderGrace:         appValues.Duration("slug_placeholder_grace", time.Minute),
		LedgerPruneInterval:          appValues.Duration("ledger_prune_interval", time.Hour),

		// API error ledger
		LedgerEnabled:   appValues.Bool("ledger_enabled"),
		LedgerRetention: appValues.Duration("ledger_retention", 30*24*time.Hour),

		// Request handling
		RecipesPerPage:   int64(appValues.Int("recipes_per_page")),
		CommentMaxLength: appValues.Int("comment_max_length"),
		RequestTimeout:   appValues.Duration("request_timeout", 30*time.Second),
		BatchTimeout:     appValues.Duration("batch_timeout", 5*time.Minute),

		// Audit logging
		AuditLogContent: appValues.String("audit_log_content"),
		AuditLogProfile: appValues.String("audit_log_profile"),
		AuditLogAdmin:   appValues.String("audit_log_admin"),

		// Admin seeding
		SeedAdminEmail: appValues.String("seed_admin_email"),
		SeedAdminName:  appValues.String("seed_admin_name"),
	}
	if appCfg.RecipesPerPage <= 0 {
		appCfg.RecipesPerPage = recipestore.DefaultPerPage
	}

	return coreCfg, appCfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var errs []error
	if appCfg.PropagationFanout < 0 {
		errs = append(errs, errors.New("propagation_fanout must not be negative"))
	}
	if appCfg.PropagationItemAttempts < 1 {
		errs = append(errs, errors.New("propagation_item_attempts must be at least 1"))
	}
	if appCfg.CommentMaxLength < 1 {
		errs = append(errs, errors.New("comment_max_length must be at least 1"))
	}
	for _, v := range []struct {
		key string
		d   time.Duration
	}{
		{"propagation_retry_delay", appCfg.PropagationRetryDelay},
		{"propagation_reconcile_interval", appCfg.PropagationReconcileInterval},
		{"slug_repair_interval", appCfg.SlugRepairInterval},
		{"slug_placeholder_grace", appCfg.SlugPlaceholderGrace},
		{"ledger_prune_interval", appCfg.LedgerPruneInterval},
	} {
		if v.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", v.key))
		}
	}
	if appCfg.LedgerPruneInterval > 0 && appCfg.LedgerRetention <= 0 {
		errs = append(errs, errors.New("ledger_retention must be positive when pruning is enabled"))
	}
	if appCfg.RequestTimeout <= 0 || appCfg.BatchTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout and batch_timeout must be positive"))
	}
	for key, v := range map[string]string{
		"audit_log_content": appCfg.AuditLogContent,
		"audit_log_profile": appCfg.AuditLogProfile,
		"audit_log_admin":   appCfg.AuditLogAdmin,
	} {
		if !auditlog.ValidSetting(v) {
			errs = append(errs, fmt.Errorf("%s: unknown value %q", key, v))
		}
	}
	if appCfg.APIKey == "" && coreCfg != nil && coreCfg.Env == "prod" {
		errs = append(errs, errors.New("api_key is required in prod"))
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}
