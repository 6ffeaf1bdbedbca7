package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	"github.com/dalemusser/stratarecipe/internal/app/store/audit"
	ledgerstore "github.com/dalemusser/stratarecipe/internal/app/store/ledger"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/tasks"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/dalemusser/stratarecipe/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fakeReconciler struct {
	n     int
	err   error
	calls int
}

func (f *fakeReconciler) Reconcile(context.Context, int64) (int, error) {
	f.calls++
	return f.n, f.err
}

type fakeRunner struct {
	known    map[string]error
	outcomes []tasks.Outcome
	ran      []string
}

func (f *fakeRunner) Trigger(_ context.Context, name string) error {
	err, ok := f.known[name]
	if !ok {
		return tasks.ErrUnknownJob
	}
	f.ran = append(f.ran, name)
	return err
}

func (f *fakeRunner) Outcomes() []tasks.Outcome { return f.outcomes }

type fixture struct {
	router     http.Handler
	db         *mongo.Database
	reconciler *fakeReconciler
	runner     *fakeRunner
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	rec := &fakeReconciler{}
	run := &fakeRunner{known: map[string]error{
		"propagation-reconcile":   nil,
		"slug-placeholder-repair": errors.New("store down"),
	}}
	al := auditlog.New(audit.New(db), logger, auditlog.Config{})
	h := NewHandler(db, rec, run, al, errorsfeature.NewErrorLogger(logger), logger)
	return fixture{router: Routes(h), db: db, reconciler: rec, runner: run}
}

func (f fixture) serve(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.WithUser(req, testutil.AdminUser()))
	return rec
}

func TestRoutes_AdminOnly(t *testing.T) {
	f := newFixture(t)

	for _, u := range []*testutil.TestUser{nil, {ID: primitive.NewObjectID().Hex(), Role: models.RoleMember}} {
		req := testutil.NewRequest(http.MethodGet, "/recipes")
		if u != nil {
			req = testutil.WithUser(req, *u)
		}
		rec := testutil.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized && rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 401 or 403", rec.Code)
		}
	}
}

func TestAllRecipes_IncludesComments(t *testing.T) {
	f := newFixture(t)
	author := testutil.InsertUser(t, f.db, models.User{DisplayName: "Mai"})
	r1 := testutil.InsertRecipe(t, f.db, models.Recipe{Title: "Soup"})
	testutil.InsertRecipe(t, f.db, models.Recipe{Title: "Stew"})
	testutil.InsertComment(t, f.db, models.Comment{RecipeID: r1.ID, AuthorID: author.ID})

	rec := f.serve(testutil.NewRequest(http.MethodGet, "/recipes"))
	rec.AssertStatus(t, http.StatusOK)

	var got struct {
		Recipes []struct {
			ID       primitive.ObjectID `json:"id"`
			Comments []struct {
				AuthorName string `json:"author_name"`
			} `json:"comments"`
		} `json:"recipes"`
	}
	rec.DecodeJSON(t, &got)
	if len(got.Recipes) != 2 {
		t.Fatalf("got %d recipes, want 2", len(got.Recipes))
	}
	for _, r := range got.Recipes {
		want := 0
		if r.ID == r1.ID {
			want = 1
		}
		if len(r.Comments) != want {
			t.Errorf("recipe %s has %d comments, want %d", r.ID.Hex(), len(r.Comments), want)
		}
		if want == 1 && r.Comments[0].AuthorName != "Mai" {
			t.Errorf("author_name = %q, want Mai", r.Comments[0].AuthorName)
		}
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	f.reconciler.n = 3

	rec := f.serve(testutil.NewRequest(http.MethodPost, "/propagation/reconcile"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"resumed":3`)
	if f.reconciler.calls != 1 {
		t.Errorf("Reconcile calls = %d, want 1", f.reconciler.calls)
	}

	f.reconciler.err = errors.New("boom")
	f.serve(testutil.NewRequest(http.MethodPost, "/propagation/reconcile")).AssertStatus(t, http.StatusInternalServerError)
}

func TestRepairSlugs(t *testing.T) {
	f := newFixture(t)
	old := time.Now().UTC().Add(-10 * time.Minute)
	stuck := testutil.InsertRecipe(t, f.db, models.Recipe{Slug: "soup-temp-0a1b2c3d", SlugBase: "soup", Title: "Soup", CreatedAt: old})
	fresh := testutil.InsertRecipe(t, f.db, models.Recipe{Slug: "stew-temp-0a1b2c3e", SlugBase: "stew", Title: "Stew"})

	rec := f.serve(testutil.NewRequest(http.MethodPost, "/slugs/repair"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"fixed":1`)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	store := recipestore.New(f.db)
	got, err := store.GetByID(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if want := "soup-" + stuck.ID.Hex(); got.Slug != want {
		t.Errorf("slug = %q, want %q", got.Slug, want)
	}
	got, _ = store.GetByID(ctx, fresh.ID)
	if got.Slug != fresh.Slug {
		t.Errorf("fresh placeholder was touched: %q", got.Slug)
	}

	rec = f.serve(testutil.NewRequest(http.MethodPost, "/slugs/repair?older_than=0s"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"fixed":1`)

	f.serve(testutil.NewRequest(http.MethodPost, "/slugs/repair?older_than=soon")).AssertStatus(t, http.StatusBadRequest)

	n, err := audit.New(f.db).CountByFilter(ctx, audit.QueryFilter{EventType: audit.EventSlugsRepaired})
	if err != nil {
		t.Fatalf("CountByFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("slugs_repaired events = %d, want 2", n)
	}
}

func TestTasks(t *testing.T) {
	f := newFixture(t)
	f.runner.outcomes = []tasks.Outcome{{Job: "propagation-reconcile", Started: time.Now()}}

	rec := f.serve(testutil.NewRequest(http.MethodGet, "/tasks"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "propagation-reconcile")

	tests := []struct {
		name     string
		wantCode int
		wantBody string
	}{
		{"propagation-reconcile", http.StatusOK, `"task":"propagation-reconcile"`},
		{"slug-placeholder-repair", http.StatusOK, "store down"},
		{"nope", http.StatusNotFound, "unknown task"},
	}
	for _, tt := range tests {
		rec := f.serve(testutil.NewRequest(http.MethodPost, "/tasks/"+tt.name+"/run"))
		rec.AssertStatus(t, tt.wantCode)
		rec.AssertContains(t, tt.wantBody)
	}
	if len(f.runner.ran) != 2 {
		t.Errorf("ran = %v, want two known tasks", f.runner.ran)
	}
}

func TestAuditLog(t *testing.T) {
	f := newFixture(t)
	target := primitive.NewObjectID()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store := audit.New(f.db)
	for _, e := range []audit.Event{
		{Category: audit.CategoryContent, EventType: audit.EventRecipeCreated, TargetID: &target, Success: true},
		{Category: audit.CategoryContent, EventType: audit.EventRecipeDeleted, Success: true},
		{Category: audit.CategoryAdmin, EventType: audit.EventSlugsRepaired, Success: true},
	} {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"/audit", http.StatusOK, 3},
		{"/audit?category=content", http.StatusOK, 2},
		{"/audit?event=slugs_repaired", http.StatusOK, 1},
		{"/audit?target=" + target.Hex(), http.StatusOK, 1},
		{"/audit?limit=1", http.StatusOK, 1},
		{"/audit?limit=0", http.StatusBadRequest, 0},
		{"/audit?target=zzz", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := f.serve(testutil.NewRequest(http.MethodGet, tt.query))
		rec.AssertStatus(t, tt.code)
		if tt.code != http.StatusOK {
			continue
		}
		var got struct {
			Events []audit.Event `json:"events"`
		}
		rec.DecodeJSON(t, &got)
		if len(got.Events) != tt.count {
			t.Errorf("%s: %d events, want %d", tt.query, len(got.Events), tt.count)
		}
	}
}

func TestLedger(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	store := ledgerstore.New(f.db)
	for _, e := range []ledgerstore.Entry{
		{Method: "POST", Path: "/api/recipes", StatusCode: 400, ErrorClass: "validation", StartedAt: time.Now().UTC()},
		{Method: "PUT", Path: "/api/me/display-name", StatusCode: 500, ErrorClass: "internal", StartedAt: time.Now().UTC()},
	} {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tests := []struct {
		query string
		code  int
		count int
	}{
		{"/ledger", http.StatusOK, 2},
		{"/ledger?class=internal", http.StatusOK, 1},
		{"/ledger?path=/api/recipes", http.StatusOK, 1},
		{"/ledger?status=400", http.StatusOK, 1},
		{"/ledger?status=200", http.StatusBadRequest, 0},
		{"/ledger?limit=many", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := f.serve(testutil.NewRequest(http.MethodGet, tt.query))
		rec.AssertStatus(t, tt.code)
		if tt.code != http.StatusOK {
			continue
		}
		var got struct {
			Entries []ledgerstore.Entry `json:"entries"`
		}
		rec.DecodeJSON(t, &got)
		if len(got.Entries) != tt.count {
			t.Errorf("%s: %d entries, want %d", tt.query, len(got.Entries), tt.count)
		}
	}
}
