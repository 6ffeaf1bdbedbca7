package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/system/tasks"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeFinder struct {
	recipes []models.Recipe
	cutoff  time.Time
	err     error
}

func (f *fakeFinder) FindPlaceholders(_ context.Context, cutoff time.Time, _ int64) ([]models.Recipe, error) {
	f.cutoff = cutoff
	return f.recipes, f.err
}

type fakeFinalizer struct {
	calls map[string]string // id -> base
	fail  map[string]bool
}

func (f *fakeFinalizer) Finalize(_ context.Context, base, id string) (string, error) {
	if f.fail[id] {
		return "", errors.New("write failed")
	}
	if f.calls == nil {
		f.calls = make(map[string]string)
	}
	f.calls[id] = base
	return base + "-" + id, nil
}

func TestRepairPlaceholders(t *testing.T) {
	good := primitive.NewObjectID()
	bad := primitive.NewObjectID()
	lookalike := primitive.NewObjectID()
	noBase := primitive.NewObjectID()

	finder := &fakeFinder{recipes: []models.Recipe{
		{ID: good, Slug: "pancakes-temp-1a2b3c4d", SlugBase: "pancakes"},
		{ID: bad, Slug: "waffles-temp-00aa11bb", SlugBase: "waffles"},
		{ID: lookalike, Slug: "soup-temp-1a2b3c4d", SlugBase: "soup-temp-1a2b3c4d"},
		{ID: noBase, Slug: "x-temp-deadbeef"},
	}}
	fin := &fakeFinalizer{fail: map[string]bool{bad.Hex(): true}}

	cutoff := time.Now().Add(-time.Minute)
	fixed, err := tasks.RepairPlaceholders(context.Background(), finder, fin, cutoff, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("RepairPlaceholders() error = %v", err)
	}
	if fixed != 1 {
		t.Errorf("fixed = %d, want 1", fixed)
	}
	if !finder.cutoff.Equal(cutoff) {
		t.Errorf("cutoff passed = %v, want %v", finder.cutoff, cutoff)
	}
	if fin.calls[good.Hex()] != "pancakes" {
		t.Errorf("base for good recipe = %q, want pancakes", fin.calls[good.Hex()])
	}
	for _, id := range []primitive.ObjectID{lookalike, noBase} {
		if base, ok := fin.calls[id.Hex()]; ok {
			t.Errorf("recipe %s finalized with base %q, want it left alone", id.Hex(), base)
		}
	}
}

func TestRepairPlaceholders_FinderError(t *testing.T) {
	finder := &fakeFinder{err: errors.New("db down")}
	_, err := tasks.RepairPlaceholders(context.Background(), finder, &fakeFinalizer{}, time.Now(), 10, zap.NewNop())
	if err == nil {
		t.Fatal("expected error from finder")
	}
}

type fakeReconciler struct {
	limit int64
	n     int
	err   error
}

func (f *fakeReconciler) Reconcile(_ context.Context, limit int64) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func TestPropagationReconcileJob(t *testing.T) {
	rec := &fakeReconciler{n: 3}
	job := tasks.PropagationReconcileJob(rec, time.Minute, 25, zap.NewNop())

	if job.Name != "propagation-reconcile" {
		t.Errorf("Name = %q", job.Name)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.limit != 25 {
		t.Errorf("limit = %d, want 25", rec.limit)
	}

	rec.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Error("expected reconcile error to surface")
	}
}

func TestSlugPlaceholderRepairJob_UsesGrace(t *testing.T) {
	finder := &fakeFinder{}
	job := tasks.SlugPlaceholderRepairJob(finder, &fakeFinalizer{}, time.Minute, 10*time.Minute, zap.NewNop())

	before := time.Now().UTC()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if finder.cutoff.After(before.Add(-10*time.Minute + time.Second)) {
		t.Errorf("cutoff %v is not at least the grace period in the past", finder.cutoff)
	}
}

type fakePruner struct {
	cutoff time.Time
	n      int64
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, nil
}

func TestLedgerPruneJob(t *testing.T) {
	p := &fakePruner{n: 4}
	job := tasks.LedgerPruneJob(p, time.Hour, 30*24*time.Hour, zap.NewNop())

	if job.Name != "ledger-prune" {
		t.Errorf("Name = %q", job.Name)
	}
	before := time.Now().UTC()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := before.Add(-30 * 24 * time.Hour)
	if d := p.cutoff.Sub(want); d < 0 || d > time.Minute {
		t.Errorf("cutoff = %v, want about %v", p.cutoff, want)
	}
}
