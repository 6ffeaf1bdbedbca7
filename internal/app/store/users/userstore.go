// Package userstore persists user profiles. A profile's _id is the user id
// that recipes (owner_id) and comments (author_id) point at; display_name
// and username feed comment author names.
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	errBadRole           = errors.New("invalid role")
	errBadStatus         = errors.New(`status must be "active"|"disabled"`)
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, filter, opts...).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByIDs loads the listed profiles in one query. Missing ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// GetByUsername matches ignoring case and diacritics, so "mai" finds "Maï".
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username_ci": text.Fold(normalize.Name(username))})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

// checkRoleStatus normalizes role and status in place, applying defaults
// when empty.
func checkRoleStatus(role, status *string) error {
	if *role == "" {
		*role = models.RoleMember
	}
	if *status == "" {
		*status = models.StatusActive
	}
	*role, *status = normalize.Role(*role), normalize.Status(*status)
	if !models.IsValidRole(*role) {
		return errBadRole
	}
	if !models.IsValidStatus(*status) {
		return errBadStatus
	}
	return nil
}

// Create assigns an id and timestamps, normalizes the names and email, and
// inserts u. Role defaults to member and status to active. A username whose
// folded form is taken yields ErrDuplicateUsername.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	if err := checkRoleStatus(&u.Role, &u.Status); err != nil {
		return models.User{}, err
	}

	u.ID = primitive.NewObjectID()
	u.DisplayName = normalize.Name(u.DisplayName)
	u.Username = normalize.Name(u.Username)
	u.UsernameCI = ""
	if u.Username != "" {
		u.UsernameCI = text.Fold(u.Username)
	}
	if u.Email != nil {
		if e := normalize.Email(*u.Email); e != "" {
			u.Email = &e
		} else {
			u.Email = nil
		}
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}
	return u, nil
}

// SetDisplayName changes only the profile. Existing comments keep their
// snapshot until a propagation run rewrites them.
func (s *Store) SetDisplayName(ctx context.Context, id primitive.ObjectID, name string) error {
	return s.set(ctx, id, bson.M{"display_name": normalize.Name(name)})
}

// UpdateInput lists the fields an admin may change; nil leaves a field alone.
type UpdateInput struct {
	Username *string
	Email    *string
	Role     *string
	Status   *string
}

func (s *Store) UpdateFromInput(ctx context.Context, id primitive.ObjectID, in UpdateInput) error {
	set := bson.M{}
	if in.Username != nil {
		name := normalize.Name(*in.Username)
		set["username"], set["username_ci"] = name, text.Fold(name)
	}
	if in.Email != nil {
		set["email"] = normalize.Email(*in.Email)
	}
	if in.Role != nil {
		role := normalize.Role(*in.Role)
		if !models.IsValidRole(role) {
			return errBadRole
		}
		set["role"] = role
	}
	if in.Status != nil {
		st := normalize.Status(*in.Status)
		if !models.IsValidStatus(st) {
			return errBadStatus
		}
		set["status"] = st
	}
	return s.set(ctx, id, set)
}

// set applies fields plus updated_at to one profile.
func (s *Store) set(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	fields["updated_at"] = time.Now().UTC()
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateUsername
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveAdmins backs the guard against demoting or disabling the last admin.
func (s *Store) CountActiveAdmins(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"role": models.RoleAdmin, "status": models.StatusActive})
}

func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.User, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}
