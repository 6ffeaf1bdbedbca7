package userstore

import (
	"errors"
	"testing"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/dalemusser/stratarecipe/internal/testutil"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		DisplayName: "  Ngọc   Anh ",
		Username:    "NgocAnh",
		Email:       strPtr(" Anh@Example.COM "),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
	if created.Status != models.StatusActive {
		t.Errorf("Status = %q, want %q", created.Status, models.StatusActive)
	}
	if created.Role != models.RoleMember {
		t.Errorf("Role = %q, want %q", created.Role, models.RoleMember)
	}
	if created.DisplayName != "Ngọc Anh" {
		t.Errorf("DisplayName = %q, want %q", created.DisplayName, "Ngọc Anh")
	}
	if created.UsernameCI == "" {
		t.Error("Create() did not set UsernameCI")
	}
	if created.Email == nil || *created.Email != "anh@example.com" {
		t.Errorf("Email = %v, want anh@example.com", created.Email)
	}
}

func TestStore_Create_InvalidRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.User{Username: "chef", Role: "superuser"})
	if err == nil {
		t.Error("Create() should reject an unknown role")
	}
}

func TestStore_Create_DuplicateUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{Username: "Chef"}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := store.Create(ctx, models.User{Username: "chef"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("second Create() error = %v, want ErrDuplicateUsername", err)
	}
}

func TestStore_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := testutil.InsertUser(t, db, models.User{DisplayName: "Bếp Trưởng", Username: "beptruong"})

	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "Bếp Trưởng" {
		t.Errorf("DisplayName = %q", got.DisplayName)
	}

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetByIDs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := testutil.InsertUser(t, db, models.User{Username: "a"})
	b := testutil.InsertUser(t, db, models.User{Username: "b"})
	testutil.InsertUser(t, db, models.User{Username: "c"})

	got, err := store.GetByIDs(ctx, []primitive.ObjectID{a.ID, b.ID, primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetByIDs() returned %d users, want 2", len(got))
	}

	none, err := store.GetByIDs(ctx, nil)
	if err != nil || none != nil {
		t.Errorf("GetByIDs(nil) = %v, %v; want nil, nil", none, err)
	}
}

func TestStore_GetByUsername_Folded(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{Username: "ChefMai"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByUsername(ctx, " CHEFMAI ")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.Username != "ChefMai" {
		t.Errorf("Username = %q", got.Username)
	}
}

func TestStore_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{Username: "mail", Email: strPtr("cook@example.com")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.GetByEmail(ctx, "COOK@example.com"); err != nil {
		t.Errorf("GetByEmail() error = %v", err)
	}
	if _, err := store.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByEmail(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_SetDisplayName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := testutil.InsertUser(t, db, models.User{DisplayName: "Old", Username: "renamer"})

	if err := store.SetDisplayName(ctx, u.ID, "  New  Name "); err != nil {
		t.Fatalf("SetDisplayName() error = %v", err)
	}
	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DisplayName != "New Name" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "New Name")
	}

	if err := store.SetDisplayName(ctx, primitive.NewObjectID(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDisplayName(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdateFromInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := testutil.InsertUser(t, db, models.User{Username: "before"})

	err := store.UpdateFromInput(ctx, u.ID, UpdateInput{
		Username: strPtr("After"),
		Role:     strPtr("ADMIN"),
		Status:   strPtr("disabled"),
	})
	if err != nil {
		t.Fatalf("UpdateFromInput() error = %v", err)
	}

	got, err := store.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Username != "After" || got.UsernameCI != text.Fold("After") {
		t.Errorf("Username/UsernameCI = %q/%q", got.Username, got.UsernameCI)
	}
	if got.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want admin", got.Role)
	}
	if got.Status != models.StatusDisabled {
		t.Errorf("Status = %q, want disabled", got.Status)
	}
}

func TestStore_UpdateFromInput_Invalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := testutil.InsertUser(t, db, models.User{Username: "valid"})

	tests := []struct {
		name  string
		input UpdateInput
	}{
		{"bad role", UpdateInput{Role: strPtr("owner")}},
		{"bad status", UpdateInput{Status: strPtr("banned")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.UpdateFromInput(ctx, u.ID, tt.input); err == nil {
				t.Error("UpdateFromInput() should fail")
			}
		})
	}

	if err := store.UpdateFromInput(ctx, primitive.NewObjectID(), UpdateInput{Username: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateFromInput(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_CountActiveAdmins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	testutil.InsertUser(t, db, models.User{Username: "a1", Role: models.RoleAdmin})
	testutil.InsertUser(t, db, models.User{Username: "a2", Role: models.RoleAdmin, Status: models.StatusDisabled})
	testutil.InsertUser(t, db, models.User{Username: "m1"})

	n, err := store.CountActiveAdmins(ctx)
	if err != nil {
		t.Fatalf("CountActiveAdmins() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountActiveAdmins() = %d, want 1", n)
	}
}

func TestStore_Find(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	testutil.InsertUser(t, db, models.User{Username: "x", Role: models.RoleAdmin})
	testutil.InsertUser(t, db, models.User{Username: "y"})

	got, err := store.Find(ctx, bson.M{"role": models.RoleMember})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || got[0].Username != "y" {
		t.Errorf("Find() = %+v", got)
	}
}

func TestFetcher_FetchUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fetcher := NewFetcher(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := testutil.InsertUser(t, db, models.User{DisplayName: "Mai", Username: "mai", Role: "Admin"})

	actor := fetcher.FetchUser(ctx, u.ID.Hex())
	if actor == nil {
		t.Fatal("FetchUser() returned nil")
	}
	if actor.ID != u.ID.Hex() || actor.DisplayName != "Mai" || actor.Username != "mai" {
		t.Errorf("FetchUser() = %+v", actor)
	}
	if actor.Role != "admin" {
		t.Errorf("Role = %q, want normalized admin", actor.Role)
	}
}

func TestFetcher_FetchUser_NilCases(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fetcher := NewFetcher(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	disabled := testutil.InsertUser(t, db, models.User{Username: "gone", Status: models.StatusDisabled})

	tests := []struct {
		name string
		id   string
	}{
		{"invalid id", "not-an-id"},
		{"not found", primitive.NewObjectID().Hex()},
		{"disabled", disabled.ID.Hex()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fetcher.FetchUser(ctx, tt.id); got != nil {
				t.Errorf("FetchUser(%q) = %+v, want nil", tt.id, got)
			}
		})
	}
}
