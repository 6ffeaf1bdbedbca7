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
//   - CORS settings for the router as a whole
//   - Request body size limits
//
// AppConfig carries everything specific to the recipe service: the MongoDB
// connection, the API key, propagation and slug repair tuning, and the
// per-request limits of the recipe and comment APIs.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// API key authentication for /api/* routes.
	// Leave empty to disable API key authentication (development only).
	APIKey string

	// Origins allowed by the API CORS middleware. Empty allows any origin.
	CORSOrigins []string

	// Display name propagation
	PropagationFanout       int           // concurrent comment writes per run (0 = unbounded)
	PropagationItemAttempts int           // attempts per comment write within one pass
	PropagationRetryDelay   time.Duration // pause between attempts on the same comment
	PropagationStaleAfter   time.Duration // idle time before a run is picked up by reconcile

	// Background tasks. A zero interval disables the task.
	PropagationReconcileInterval time.Duration
	SlugRepairInterval           time.Duration
	SlugPlaceholderGrace         time.Duration // placeholders younger than this are left alone
	LedgerPruneInterval          time.Duration

	// API error ledger
	LedgerEnabled   bool
	LedgerRetention time.Duration // entries older than this are pruned

	// Request handling
	RecipesPerPage   int64         // page size of recipe listings
	CommentMaxLength int           // maximum comment body length in characters
	RequestTimeout   time.Duration // timeout for ordinary API requests
	BatchTimeout     time.Duration // timeout for renames and admin maintenance requests

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogContent string // recipe and comment changes
	AuditLogProfile string // display name changes and propagation
	AuditLogAdmin   string // admin actions

	// Admin seeding configuration
	SeedAdminEmail string // Email of the admin user to create on startup (if set)
	SeedAdminName  string // Display name of the admin user to create on startup
}
