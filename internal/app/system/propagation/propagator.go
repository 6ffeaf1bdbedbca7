// Package propagation copies a user's new display name onto every comment
// they have written.
//
// A rename is recorded as a run plus one item per affected comment before
// any comment is touched. Items are then applied concurrently with a small
// per-item retry, and whatever is left unfinished can be resumed later from
// the stored items. Comments are rewritten independently; there is no
// atomicity across them and readers may see a mix of old and new names until
// the run settles.
//
// Runs for one user are serialised within a process. Across processes a run
// re-reads the profile before each write and stops once its name is no longer
// the display name; a run that finds it was overtaken writes the current name
// back over its own work before it closes as superseded.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	commentstore "github.com/dalemusser/stratarecipe/internal/app/store/comments"
	propagationstore "github.com/dalemusser/stratarecipe/internal/app/store/propagation"
	"github.com/dalemusser/stratarecipe/internal/app/system/metrics"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyName is returned when asked to propagate an empty display name.
var ErrEmptyName = errors.New("display name is empty")

// ErrCommentGone is how Content.SetAuthorName reports a comment that no
// longer exists. Its item is skipped, not failed.
var ErrCommentGone = commentstore.ErrNotFound

// Content is the recipe and comment data a run reads and writes.
type Content interface {
	// RecipeIDs enumerates every recipe, regardless of owner.
	RecipeIDs(ctx context.Context) ([]primitive.ObjectID, error)
	// CommentsByAuthor returns the comments on recipeID written by authorID.
	CommentsByAuthor(ctx context.Context, recipeID, authorID primitive.ObjectID) ([]models.Comment, error)
	// SetAuthorName rewrites the stored author name of one comment. It
	// returns ErrCommentGone when the comment was deleted.
	SetAuthorName(ctx context.Context, commentID primitive.ObjectID, name string) error
}

// RecipeLister enumerates recipes.
type RecipeLister interface {
	RecipeIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// CommentWriter reads and rewrites comment author names.
type CommentWriter interface {
	CommentsByAuthor(ctx context.Context, recipeID, authorID primitive.ObjectID) ([]models.Comment, error)
	SetAuthorName(ctx context.Context, commentID primitive.ObjectID, name string) error
}

type content struct {
	RecipeLister
	CommentWriter
}

// NewContent joins a recipe store and a comment store into a Content.
func NewContent(recipes RecipeLister, comments CommentWriter) Content {
	return content{RecipeLister: recipes, CommentWriter: comments}
}

// Runs persists runs and their items.
type Runs interface {
	// CreateRun inserts run and items, assigning IDs to both.
	CreateRun(ctx context.Context, run *models.PropagationRun, items []models.PropagationItem) error
	AddItems(ctx context.Context, runID primitive.ObjectID, items []models.PropagationItem) error
	GetRun(ctx context.Context, id primitive.ObjectID) (models.PropagationRun, error)
	// SaveRun writes status and counters. It returns
	// propagationstore.ErrSuperseded instead of overwriting a superseded run.
	SaveRun(ctx context.Context, run models.PropagationRun) error
	SaveItem(ctx context.Context, item models.PropagationItem) error
	// Items returns every item of a run.
	Items(ctx context.Context, runID primitive.ObjectID) ([]models.PropagationItem, error)
	// SupersedeOthers marks the user's unfinished runs other than keep as superseded.
	SupersedeOthers(ctx context.Context, userID, keep primitive.ObjectID) (int64, error)
	// ListIncomplete returns runs that are not terminal and were last touched before cutoff.
	ListIncomplete(ctx context.Context, cutoff time.Time, limit int64) ([]models.PropagationRun, error)
}

// Profiles reads the current profile of a user.
type Profiles interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Config tunes how runs are applied.
type Config struct {
	// Fanout caps concurrent comment writes. 0 means no cap.
	Fanout int
	// Attempts is how many times a single comment write is tried per pass.
	Attempts int
	// RetryDelay is the pause between attempts on the same comment.
	RetryDelay time.Duration
	// StaleAfter is how long a run must sit untouched before Reconcile resumes it.
	StaleAfter time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Fanout:     0,
		Attempts:   3,
		RetryDelay: 200 * time.Millisecond,
		StaleAfter: 5 * time.Minute,
	}
}

// Report summarises one Propagate or Resume call. Updated counts the
// comment writes that succeeded during the call and is a lower bound on
// the comments now carrying the new name. Skipped counts comments that were
// deleted or no longer needed the name.
type Report struct {
	RunID   primitive.ObjectID `json:"run_id"`
	Status  string             `json:"status"`
	Total   int                `json:"total"`
	Updated int                `json:"updated"`
	Failed  int                `json:"failed"`
	Skipped int                `json:"skipped"`
}

// Propagator runs display-name propagation.
type Propagator struct {
	content  Content
	runs     Runs
	profiles Profiles
	cfg      Config
	locks    *userLocks
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Propagator. A zero Attempts is raised to 1.
func New(content Content, runs Runs, profiles Profiles, cfg Config, logger *zap.Logger) *Propagator {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Fanout < 0 {
		cfg.Fanout = 0
	}
	return &Propagator{
		content:  content,
		runs:     runs,
		profiles: profiles,
		cfg:      cfg,
		locks:    newUserLocks(),
		logger:   logger,
		now:      time.Now,
	}
}

// Propagate writes name onto every comment authored by userID.
//
// It fails only when the recipes or comments cannot be enumerated, or when
// ctx ends while another run for the same user holds the lock. Failed
// comment writes are logged, counted in the report and left on the run for
// Resume or the reconcile job.
func (p *Propagator) Propagate(ctx context.Context, userID primitive.ObjectID, name string) (Report, error) {
	if name == "" {
		return Report{}, ErrEmptyName
	}
	unlock, err := p.locks.acquire(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("wait for running propagation: %w", err)
	}
	defer unlock()
	start := p.now()

	comments, err := p.enumerate(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("enumerate comments: %w", err)
	}

	run := models.PropagationRun{
		UserID:      userID,
		DisplayName: name,
		Status:      models.RunRunning,
		Total:       len(comments),
		CreatedAt:   start,
		UpdatedAt:   start,
	}
	items := newItems(comments, start)
	if err := p.runs.CreateRun(ctx, &run, items); err != nil {
		// Apply anyway; the rename is already on the profile and only
		// resumability is lost.
		p.logger.Warn("propagation run not recorded; applying without outbox",
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
		run.ID = primitive.NilObjectID
		for i := range items {
			items[i].ID = primitive.NilObjectID
		}
	} else if n, err := p.runs.SupersedeOthers(ctx, userID, run.ID); err != nil {
		p.logger.Warn("failed to supersede earlier propagation runs",
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
	} else if n > 0 {
		p.logger.Info("superseded earlier propagation runs",
			zap.String("user_id", userID.Hex()),
			zap.Int64("count", n))
	}

	f := &fence{profiles: p.profiles, run: &run}
	t := p.apply(ctx, f, items)
	t.add(p.sweep(ctx, f, items))
	run.Updated = t.updated
	run.Failed = t.failed
	run.Skipped = t.skipped
	run.Passes = 1
	p.conclude(ctx, f)
	metrics.PropagationDuration.Observe(p.now().Sub(start).Seconds())

	return reportOf(run, run.Updated), nil
}

// Resume re-applies the unfinished items of a run. A run whose name no
// longer matches the user's profile is marked superseded instead, so an
// older rename does not overwrite a newer one. Terminal runs are returned
// unchanged.
func (p *Propagator) Resume(ctx context.Context, runID primitive.ObjectID) (Report, error) {
	run, err := p.runs.GetRun(ctx, runID)
	if err != nil {
		return Report{}, fmt.Errorf("load run: %w", err)
	}
	if run.IsTerminal() {
		return reportOf(run, 0), nil
	}

	unlock, err := p.locks.acquire(ctx, run.UserID)
	if err != nil {
		return Report{}, fmt.Errorf("wait for running propagation: %w", err)
	}
	defer unlock()
	start := p.now()

	// another pass may have settled the run while this one waited
	if run, err = p.runs.GetRun(ctx, runID); err != nil {
		return Report{}, fmt.Errorf("load run: %w", err)
	}
	if run.IsTerminal() {
		return reportOf(run, 0), nil
	}

	profile, err := p.profiles.GetByID(ctx, run.UserID)
	if err != nil {
		return Report{}, fmt.Errorf("load profile: %w", err)
	}
	if profile.DisplayName != run.DisplayName {
		if err := p.supersede(ctx, &run); err != nil {
			return Report{}, fmt.Errorf("save run: %w", err)
		}
		return reportOf(run, 0), nil
	}

	all, err := p.runs.Items(ctx, run.ID)
	if err != nil {
		return Report{}, fmt.Errorf("load items: %w", err)
	}
	var pending []models.PropagationItem
	for _, it := range all {
		if !it.IsSettled() {
			pending = append(pending, it)
		}
	}

	run.Status = models.RunRunning
	run.UpdatedAt = p.now()
	if err := p.runs.SaveRun(ctx, run); errors.Is(err, propagationstore.ErrSuperseded) {
		run.Status = models.RunSuperseded
		return reportOf(run, 0), nil
	} else if err != nil {
		p.logger.Warn("failed to mark propagation run running",
			zap.String("run_id", run.ID.Hex()),
			zap.Error(err))
	}

	f := &fence{profiles: p.profiles, run: &run}
	t := p.apply(ctx, f, pending)
	t.add(p.sweep(ctx, f, latest(all, pending)))
	run.Updated += t.updated
	run.Failed = t.failed
	run.Skipped += t.skipped
	run.Passes++
	p.conclude(ctx, f)
	metrics.PropagationDuration.Observe(p.now().Sub(start).Seconds())

	return reportOf(run, t.updated), nil
}

// Reconcile resumes runs that were left unfinished, for example because the
// process stopped mid-run or some writes kept failing. It returns how many
// runs it resumed.
func (p *Propagator) Reconcile(ctx context.Context, limit int64) (int, error) {
	cutoff := p.now().Add(-p.cfg.StaleAfter)
	runs, err := p.runs.ListIncomplete(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list incomplete runs: %w", err)
	}
	resumed := 0
	for _, r := range runs {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		rep, err := p.Resume(ctx, r.ID)
		if err != nil {
			p.logger.Warn("failed to resume propagation run",
				zap.String("run_id", r.ID.Hex()),
				zap.Error(err))
			continue
		}
		resumed++
		p.logger.Info("resumed propagation run",
			zap.String("run_id", r.ID.Hex()),
			zap.String("status", rep.Status),
			zap.Int("updated", rep.Updated),
			zap.Int("failed", rep.Failed))
	}
	return resumed, nil
}

// enumerate walks every recipe and collects the comments written by userID.
func (p *Propagator) enumerate(ctx context.Context, userID primitive.ObjectID) ([]models.Comment, error) {
	recipeIDs, err := p.content.RecipeIDs(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Comment
	for _, rid := range recipeIDs {
		cs, err := p.content.CommentsByAuthor(ctx, rid, userID)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", rid.Hex(), err)
		}
		out = append(out, cs...)
	}
	return out, nil
}

// sweep re-enumerates after a pass and rewrites every comment that still
// carries a different name: one written with the old name while the pass was
// in flight, or one of the run's own comments overwritten since. Items that
// already failed in this pass are left as they are. Enumeration errors here
// are logged and leave the run as it is.
func (p *Propagator) sweep(ctx context.Context, f *fence, known []models.PropagationItem) tally {
	run := f.run
	if f.stale.Load() {
		return tally{}
	}
	comments, err := p.enumerate(ctx, run.UserID)
	if err != nil {
		p.logger.Warn("propagation verification sweep failed",
			zap.String("run_id", run.ID.Hex()),
			zap.Error(err))
		return tally{}
	}
	byComment := make(map[primitive.ObjectID]models.PropagationItem, len(known))
	for _, it := range known {
		byComment[it.CommentID] = it
	}

	var (
		again []models.PropagationItem
		fresh []models.Comment
	)
	for _, c := range comments {
		if c.AuthorName == run.DisplayName {
			continue
		}
		it, ok := byComment[c.ID]
		switch {
		case !ok:
			fresh = append(fresh, c)
		case it.State != models.ItemFailed:
			again = append(again, it)
		}
	}
	if len(fresh) == 0 && len(again) == 0 {
		return tally{}
	}

	items := newItems(fresh, p.now())
	if len(items) > 0 && !run.ID.IsZero() {
		if err := p.runs.AddItems(ctx, run.ID, items); err != nil {
			p.logger.Warn("failed to record swept comments",
				zap.String("run_id", run.ID.Hex()),
				zap.Error(err))
		}
	}
	run.Total += len(items)
	p.logger.Info("propagation sweep found stale comments",
		zap.String("run_id", run.ID.Hex()),
		zap.Int("new", len(items)),
		zap.Int("rewritten", len(again)))
	return p.apply(ctx, f, append(again, items...))
}

// outcome is the result of applying one item.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeFailed
	outcomeSkipped
)

type tally struct {
	updated int
	failed  int
	skipped int
}

func (t *tally) count(o outcome) {
	switch o {
	case outcomeDone:
		t.updated++
	case outcomeFailed:
		t.failed++
	case outcomeSkipped:
		t.skipped++
	}
}

func (t *tally) add(o tally) {
	t.updated += o.updated
	t.failed += o.failed
	t.skipped += o.skipped
}

// fence tracks whether a run's name is still the user's display name.
type fence struct {
	profiles Profiles
	run      *models.PropagationRun
	stale    atomic.Bool
}

// current re-reads the profile. Once a different name has been seen the run
// stays stale. A failed read counts as current.
func (f *fence) current(ctx context.Context) bool {
	if f.stale.Load() {
		return false
	}
	u, err := f.profiles.GetByID(ctx, f.run.UserID)
	if err != nil || u == nil {
		return true
	}
	if u.DisplayName != f.run.DisplayName {
		f.stale.Store(true)
		return false
	}
	return true
}

// apply writes the run's name onto each item concurrently and waits for all
// of them. Items are updated in place.
func (p *Propagator) apply(ctx context.Context, f *fence, items []models.PropagationItem) tally {
	var (
		mu sync.Mutex
		t  tally
	)
	g := new(errgroup.Group)
	if p.cfg.Fanout > 0 {
		g.SetLimit(p.cfg.Fanout)
	}
	for i := range items {
		it := &items[i]
		g.Go(func() error {
			o := p.applyItem(ctx, f, it)
			mu.Lock()
			t.count(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return t
}

func (p *Propagator) applyItem(ctx context.Context, f *fence, it *models.PropagationItem) outcome {
	run := f.run
	var (
		err error
		out outcome
	)
	if !f.current(ctx) {
		it.State = models.ItemSkipped
		it.LastError = "display name changed again"
		out = outcomeSkipped
	} else {
		for attempt := 0; attempt < p.cfg.Attempts; attempt++ {
			if attempt > 0 {
				metrics.PropagationWrites.WithLabelValues("retried").Inc()
				if serr := sleepCtx(ctx, p.cfg.RetryDelay); serr != nil {
					err = serr
					break
				}
			}
			it.Attempts++
			err = p.content.SetAuthorName(ctx, it.CommentID, run.DisplayName)
			if err == nil || errors.Is(err, ErrCommentGone) {
				break
			}
		}

		switch {
		case err == nil:
			it.State = models.ItemDone
			it.LastError = ""
			out = outcomeDone
		case errors.Is(err, ErrCommentGone):
			it.State = models.ItemSkipped
			it.LastError = "comment deleted"
			out = outcomeSkipped
		default:
			it.State = models.ItemFailed
			it.LastError = err.Error()
			out = outcomeFailed
			p.logger.Warn("comment author name update failed",
				zap.String("run_id", run.ID.Hex()),
				zap.String("comment_id", it.CommentID.Hex()),
				zap.String("recipe_id", it.RecipeID.Hex()),
				zap.Int("attempts", it.Attempts),
				zap.Error(err))
		}
	}
	metrics.PropagationWrites.WithLabelValues(it.State).Inc()

	it.UpdatedAt = p.now()
	if !run.ID.IsZero() && !it.ID.IsZero() {
		if serr := p.runs.SaveItem(ctx, *it); serr != nil {
			p.logger.Warn("failed to record propagation item state",
				zap.String("run_id", run.ID.Hex()),
				zap.String("comment_id", it.CommentID.Hex()),
				zap.Error(serr))
		}
	}
	return out
}

// conclude closes a pass. A run whose name stopped being the display name
// while it ran is closed as superseded after the current name is written
// back; otherwise the run is finished.
func (p *Propagator) conclude(ctx context.Context, f *fence) {
	if f.current(ctx) {
		p.finish(ctx, f.run)
		return
	}
	if err := p.supersede(ctx, f.run); err != nil {
		p.logger.Warn("failed to record superseded propagation run",
			zap.String("run_id", f.run.ID.Hex()),
			zap.Error(err))
	}
	p.restore(ctx, f.run.UserID)
}

func (p *Propagator) finish(ctx context.Context, run *models.PropagationRun) {
	now := p.now()
	run.UpdatedAt = now
	if run.Failed == 0 {
		run.Status = models.RunCompleted
		run.CompletedAt = &now
	} else {
		run.Status = models.RunPartial
	}

	if !run.ID.IsZero() {
		err := p.runs.SaveRun(ctx, *run)
		if errors.Is(err, propagationstore.ErrSuperseded) {
			// a newer rename started elsewhere while this one was applied
			run.Status = models.RunSuperseded
			run.CompletedAt = nil
			metrics.PropagationRuns.WithLabelValues(run.Status).Inc()
			p.logger.Info("propagation run superseded while applying",
				zap.String("run_id", run.ID.Hex()),
				zap.String("user_id", run.UserID.Hex()))
			p.restore(ctx, run.UserID)
			return
		}
		if err != nil {
			p.logger.Warn("failed to record propagation run result",
				zap.String("run_id", run.ID.Hex()),
				zap.Error(err))
		}
	}
	metrics.PropagationRuns.WithLabelValues(run.Status).Inc()
	p.logger.Info("propagation run finished",
		zap.String("run_id", run.ID.Hex()),
		zap.String("user_id", run.UserID.Hex()),
		zap.String("status", run.Status),
		zap.Int("total", run.Total),
		zap.Int("updated", run.Updated),
		zap.Int("failed", run.Failed),
		zap.Int("skipped", run.Skipped))
}

// supersede marks run superseded.
func (p *Propagator) supersede(ctx context.Context, run *models.PropagationRun) error {
	run.Status = models.RunSuperseded
	run.UpdatedAt = p.now()
	run.CompletedAt = nil
	metrics.PropagationRuns.WithLabelValues(run.Status).Inc()
	p.logger.Info("propagation run superseded",
		zap.String("run_id", run.ID.Hex()),
		zap.String("user_id", run.UserID.Hex()))
	if run.ID.IsZero() {
		return nil
	}
	return p.runs.SaveRun(ctx, *run)
}

// restore writes the user's current display name onto every comment of
// theirs that carries another one. A superseded run calls it because its
// writes may have landed after the newer run finished.
func (p *Propagator) restore(ctx context.Context, userID primitive.ObjectID) {
	profile, err := p.profiles.GetByID(ctx, userID)
	if err != nil || profile == nil || profile.DisplayName == "" {
		p.logger.Warn("cannot restore current display name",
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
		return
	}
	comments, err := p.enumerate(ctx, userID)
	if err != nil {
		p.logger.Warn("cannot restore current display name",
			zap.String("user_id", userID.Hex()),
			zap.Error(err))
		return
	}

	restored := 0
	for _, c := range comments {
		if c.AuthorName == profile.DisplayName {
			continue
		}
		if err := p.content.SetAuthorName(ctx, c.ID, profile.DisplayName); err != nil {
			if !errors.Is(err, ErrCommentGone) {
				p.logger.Warn("failed to restore comment author name",
					zap.String("comment_id", c.ID.Hex()),
					zap.Error(err))
			}
			continue
		}
		restored++
	}
	if restored > 0 {
		p.logger.Info("restored current display name on comments",
			zap.String("user_id", userID.Hex()),
			zap.Int("count", restored))
	}
}

func newItems(comments []models.Comment, now time.Time) []models.PropagationItem {
	items := make([]models.PropagationItem, 0, len(comments))
	for _, c := range comments {
		items = append(items, models.PropagationItem{
			RecipeID:  c.RecipeID,
			CommentID: c.ID,
			State:     models.ItemPending,
			UpdatedAt: now,
		})
	}
	return items
}

// latest merges item lists, later lists winning per comment.
func latest(lists ...[]models.PropagationItem) []models.PropagationItem {
	idx := make(map[primitive.ObjectID]int)
	var out []models.PropagationItem
	for _, l := range lists {
		for _, it := range l {
			if i, ok := idx[it.CommentID]; ok {
				out[i] = it
				continue
			}
			idx[it.CommentID] = len(out)
			out = append(out, it)
		}
	}
	return out
}

func reportOf(run models.PropagationRun, updated int) Report {
	return Report{
		RunID:   run.ID,
		Status:  run.Status,
		Total:   run.Total,
		Updated: updated,
		Failed:  run.Failed,
		Skipped: run.Skipped,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
