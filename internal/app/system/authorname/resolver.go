// Package authorname decides which name to show for a comment's author.
//
// The denormalized name on the comment wins. When it is missing the live
// profile is consulted (display name, then username), and "Anonymous" is
// shown when nothing else is available. Resolution never fails.
package authorname

import (
	"context"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Fallback is shown when neither the comment nor the profile carries a name.
const Fallback = "Anonymous"

// ProfileLookup loads author profiles. Missing users are simply absent from
// the result.
type ProfileLookup interface {
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

// Source gives strategies access to the comment and, lazily, its author's profile.
type Source struct {
	Comment models.Comment
	profile func() *models.User
}

// Profile returns the author's profile, loading it on first use. It returns
// nil when the profile does not exist or could not be loaded.
func (s Source) Profile() *models.User {
	if s.profile == nil {
		return nil
	}
	return s.profile()
}

// Strategy returns a name and true when it has one.
type Strategy struct {
	Name   string
	Lookup func(Source) (string, bool)
}

// CommentSnapshot uses the name stored on the comment.
var CommentSnapshot = Strategy{
	Name: "comment",
	Lookup: func(s Source) (string, bool) {
		return s.Comment.AuthorName, s.Comment.AuthorName != ""
	},
}

// ProfileDisplayName uses the author's current display name.
var ProfileDisplayName = Strategy{
	Name: "display_name",
	Lookup: func(s Source) (string, bool) {
		if p := s.Profile(); p != nil && p.DisplayName != "" {
			return p.DisplayName, true
		}
		return "", false
	},
}

// ProfileUsername uses the author's username.
var ProfileUsername = Strategy{
	Name: "username",
	Lookup: func(s Source) (string, bool) {
		if p := s.Profile(); p != nil && p.Username != "" {
			return p.Username, true
		}
		return "", false
	},
}

// Constant always answers with name.
func Constant(name string) Strategy {
	return Strategy{
		Name: "constant",
		Lookup: func(Source) (string, bool) {
			return name, true
		},
	}
}

// DefaultChain is the precedence used for comment listings.
func DefaultChain() []Strategy {
	return []Strategy{
		CommentSnapshot,
		ProfileDisplayName,
		ProfileUsername,
		Constant(Fallback),
	}
}

// Resolver evaluates a strategy chain for comments.
type Resolver struct {
	profiles ProfileLookup
	chain    []Strategy
	logger   *zap.Logger
}

// New creates a Resolver using DefaultChain.
func New(profiles ProfileLookup, logger *zap.Logger) *Resolver {
	return NewWithChain(profiles, DefaultChain(), logger)
}

// NewWithChain creates a Resolver with a custom precedence.
func NewWithChain(profiles ProfileLookup, chain []Strategy, logger *zap.Logger) *Resolver {
	return &Resolver{
		profiles: profiles,
		chain:    chain,
		logger:   logger,
	}
}

// Resolve returns the name to display for c. The profile is only read when
// the comment has no stored name.
func (r *Resolver) Resolve(ctx context.Context, c models.Comment) string {
	var (
		loaded  bool
		profile *models.User
	)
	src := Source{
		Comment: c,
		profile: func() *models.User {
			if !loaded {
				loaded = true
				profile = r.lookupOne(ctx, c.AuthorID)
			}
			return profile
		},
	}
	return r.evaluate(src)
}

// ResolveAll resolves names for a list of comments. The first profile read
// fetches every author whose comment has no stored name in one query; any
// other author asked for later is fetched on its own. Results are keyed by
// comment ID.
func (r *Resolver) ResolveAll(ctx context.Context, comments []models.Comment) map[primitive.ObjectID]string {
	out := make(map[primitive.ObjectID]string, len(comments))

	batched := false
	profiles := make(map[primitive.ObjectID]*models.User)
	fetched := make(map[primitive.ObjectID]bool)
	load := func(id primitive.ObjectID) *models.User {
		if !batched {
			batched = true
			ids := authorsNeedingProfile(comments)
			for k, v := range r.lookupMany(ctx, ids) {
				profiles[k] = v
			}
			for _, k := range ids {
				fetched[k] = true
			}
		}
		if !fetched[id] {
			fetched[id] = true
			profiles[id] = r.lookupOne(ctx, id)
		}
		return profiles[id]
	}

	for _, c := range comments {
		authorID := c.AuthorID
		src := Source{
			Comment: c,
			profile: func() *models.User {
				return load(authorID)
			},
		}
		out[c.ID] = r.evaluate(src)
	}
	return out
}

// Named is a comment with the name to display for its author.
type Named struct {
	models.Comment
	AuthorName string `json:"author_name"`
}

// NameAll is ResolveAll returning the comments in order with their names attached.
func (r *Resolver) NameAll(ctx context.Context, comments []models.Comment) []Named {
	names := r.ResolveAll(ctx, comments)
	out := make([]Named, 0, len(comments))
	for _, c := range comments {
		out = append(out, Named{Comment: c, AuthorName: names[c.ID]})
	}
	return out
}

func (r *Resolver) evaluate(src Source) string {
	for _, s := range r.chain {
		if name, ok := s.Lookup(src); ok {
			return name
		}
	}
	return Fallback
}

func (r *Resolver) lookupOne(ctx context.Context, id primitive.ObjectID) *models.User {
	if id.IsZero() {
		return nil
	}
	return r.lookupMany(ctx, []primitive.ObjectID{id})[id]
}

func (r *Resolver) lookupMany(ctx context.Context, ids []primitive.ObjectID) map[primitive.ObjectID]*models.User {
	out := make(map[primitive.ObjectID]*models.User, len(ids))
	if r.profiles == nil || len(ids) == 0 {
		return out
	}
	users, err := r.profiles.GetByIDs(ctx, ids)
	if err != nil {
		r.logger.Warn("author profile lookup failed; falling back",
			zap.Int("authors", len(ids)),
			zap.Error(err))
		return out
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out
}

// authorsNeedingProfile lists distinct authors of comments without a stored name.
func authorsNeedingProfile(comments []models.Comment) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	var ids []primitive.ObjectID
	for _, c := range comments {
		if c.AuthorName != "" || c.AuthorID.IsZero() {
			continue
		}
		if _, ok := seen[c.AuthorID]; ok {
			continue
		}
		seen[c.AuthorID] = struct{}{}
		ids = append(ids, c.AuthorID)
	}
	return ids
}
