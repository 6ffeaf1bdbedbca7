// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/stratarecipe/internal/app/store/audit"
	"github.com/dalemusser/stratarecipe/internal/app/system/network"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	All = "all" // MongoDB and zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off"
)

// ValidSetting reports whether s is a destination setting. Empty is valid
// and means All.
func ValidSetting(s string) bool {
	switch s {
	case "", All, DB, Log, Off:
		return true
	}
	return false
}

// Config selects where each category of event goes. Empty means All.
type Config struct {
	Content string // recipe and comment changes
	Profile string // display name changes and their propagation
	Admin   string // admin maintenance actions
}

// Logger records audit events to the audit store and to zap.
// A nil *Logger is valid and records nothing.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryContent:
		s = l.config.Content
	case audit.CategoryProfile:
		s = l.config.Profile
	case audit.CategoryAdmin:
		s = l.config.Admin
	}
	if s == "" {
		return All
	}
	return s
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.TargetID != nil {
		fields = append(fields, zap.String("target_id", event.TargetID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records event according to the category's destination setting.
// Store failures are logged, never returned.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.setting(event.Category)
	if setting == Off {
		return
	}
	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

func fromRequest(r *http.Request, e audit.Event) audit.Event {
	if r != nil {
		e.IP = network.GetClientIP(r)
		e.UserAgent = r.UserAgent()
	}
	return e
}

// --- Content events ---

// RecipeCreated logs a new recipe and how its slug was obtained.
func (l *Logger) RecipeCreated(ctx context.Context, r *http.Request, actorID, recipeID primitive.ObjectID, slug, path string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryContent,
		EventType: audit.EventRecipeCreated,
		ActorID:   &actorID,
		TargetID:  &recipeID,
		Success:   true,
		Details:   map[string]string{"slug": slug, "slug_path": path},
	}))
}

// RecipeUpdated logs an edit. The slug entries are only set when the slug changed.
func (l *Logger) RecipeUpdated(ctx context.Context, r *http.Request, actorID, recipeID primitive.ObjectID, oldSlug, newSlug string) {
	var details map[string]string
	if oldSlug != newSlug {
		details = map[string]string{"old_slug": oldSlug, "new_slug": newSlug}
	}
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryContent,
		EventType: audit.EventRecipeUpdated,
		ActorID:   &actorID,
		TargetID:  &recipeID,
		Success:   true,
		Details:   details,
	}))
}

// RecipeDeleted logs a deletion along with how many comments went with it.
func (l *Logger) RecipeDeleted(ctx context.Context, r *http.Request, actorID, recipeID primitive.ObjectID, slug string, commentsRemoved int64) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryContent,
		EventType: audit.EventRecipeDeleted,
		ActorID:   &actorID,
		TargetID:  &recipeID,
		Success:   true,
		Details: map[string]string{
			"slug":             slug,
			"comments_removed": strconv.FormatInt(commentsRemoved, 10),
		},
	}))
}

// CommentDeleted logs a comment removed by its author or an admin.
func (l *Logger) CommentDeleted(ctx context.Context, r *http.Request, actorID, authorID, commentID, recipeID primitive.ObjectID) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryContent,
		EventType: audit.EventCommentDeleted,
		ActorID:   &actorID,
		UserID:    &authorID,
		TargetID:  &commentID,
		Success:   true,
		Details:   map[string]string{"recipe_id": recipeID.Hex()},
	}))
}

// --- Profile events ---

// DisplayNameChanged logs a rename on the user's profile.
func (l *Logger) DisplayNameChanged(ctx context.Context, r *http.Request, userID primitive.ObjectID, oldName, newName string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryProfile,
		EventType: audit.EventDisplayNameChanged,
		UserID:    &userID,
		ActorID:   &userID,
		Success:   true,
		Details:   map[string]string{"old_name": oldName, "new_name": newName},
	}))
}

// PropagationFinished logs the outcome of a propagation run. A run that left
// failed items is recorded as unsuccessful.
func (l *Logger) PropagationFinished(ctx context.Context, r *http.Request, userID, runID primitive.ObjectID, status string, total, updated, failed int) {
	e := audit.Event{
		Category:  audit.CategoryProfile,
		EventType: audit.EventPropagationFinished,
		UserID:    &userID,
		Success:   failed == 0,
		Details: map[string]string{
			"status":  status,
			"total":   strconv.Itoa(total),
			"updated": strconv.Itoa(updated),
			"failed":  strconv.Itoa(failed),
		},
	}
	if !runID.IsZero() {
		e.TargetID = &runID
	}
	if failed > 0 {
		e.FailureReason = "some comments were not updated"
	}
	l.Log(ctx, fromRequest(r, e))
}

// --- Admin events ---

// UserCreated logs a profile created through the API.
func (l *Logger) UserCreated(ctx context.Context, r *http.Request, actorID, userID primitive.ObjectID, role string) {
	e := audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventUserCreated,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"role": role},
	}
	if !actorID.IsZero() {
		e.ActorID = &actorID
	}
	l.Log(ctx, fromRequest(r, e))
}

// PropagationReconciled logs an admin-triggered reconcile pass.
func (l *Logger) PropagationReconciled(ctx context.Context, r *http.Request, actorID primitive.ObjectID, runs int) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventPropagationReconciled,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"runs": strconv.Itoa(runs)},
	}))
}

// SlugsRepaired logs an admin-triggered placeholder repair pass.
func (l *Logger) SlugsRepaired(ctx context.Context, r *http.Request, actorID primitive.ObjectID, fixed int) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAdmin,
		EventType: audit.EventSlugsRepaired,
		ActorID:   &actorID,
		Success:   true,
		Details:   map[string]string{"fixed": strconv.Itoa(fixed)},
	}))
}
