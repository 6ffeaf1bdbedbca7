package slug

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrTaken is returned by an InsertFunc or WriteFunc when the store rejects
// the slug because another item already holds it.
var ErrTaken = errors.New("slug already taken")

// ErrEmptyBase is returned when asked to allocate on an empty token.
var ErrEmptyBase = errors.New("slug base token is empty")

// StoreError wraps a store failure during allocation. Slug is the value the
// item is reachable under when the failure happened (the placeholder if the
// insert succeeded but the finalize write did not), or "" if nothing was written.
type StoreError struct {
	Op   string
	Slug string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("slug %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("slug %s (item left at %q): %v", e.Op, e.Slug, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is what the allocator needs from the collection holding the items.
type Store interface {
	// SlugTaken reports whether an item other than excludeID holds slug.
	// An empty excludeID excludes nothing.
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
	// SetSlug rewrites the slug of an existing item.
	SetSlug(ctx context.Context, id, slug string) error
}

// InsertFunc writes a new item carrying slug and returns the id the store assigned.
type InsertFunc func(ctx context.Context, slug string) (id string, err error)

// WriteFunc writes slug onto an existing item, usually along with the rest of an edit.
type WriteFunc func(ctx context.Context, slug string) error

// Path says how a slug was obtained.
type Path string

const (
	// PathDirect: the base token was free and used as is.
	PathDirect Path = "direct"
	// PathSuffixed: the base token was taken and the id suffix was applied.
	PathSuffixed Path = "suffixed"
	// PathRaced: the probe said free but the write lost to a concurrent
	// writer, so the id suffix was applied.
	PathRaced Path = "raced"
)

// Result is the outcome of an allocation.
type Result struct {
	ID   string
	Slug string
	Path Path
}

const (
	placeholderMarker = "-temp-"
	// placeholder inserts only collide if two random suffixes match
	maxPlaceholderTries = 3
)

var placeholderSuffixRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Allocator assigns unique slugs to items in one collection.
type Allocator struct {
	store  Store
	suffix func() string
}

// NewAllocator returns an Allocator backed by store.
func NewAllocator(store Store) *Allocator {
	return &Allocator{
		store:  store,
		suffix: randomSuffix,
	}
}

func randomSuffix() string {
	return uuid.New().String()[:8]
}

// Suffixed returns the collision-proof form of base for the item id.
func Suffixed(base, id string) string {
	return base + "-" + id
}

// Placeholder returns a temporary slug for base.
func (a *Allocator) Placeholder(base string) string {
	return base + placeholderMarker + a.suffix()
}

// IsPlaceholder reports whether s is a temporary slug Placeholder gave base.
// A title that merely ends in "-temp-" and eight hex digits is not one.
func IsPlaceholder(s, base string) bool {
	if base == "" {
		return false
	}
	rest, ok := strings.CutPrefix(s, base+placeholderMarker)
	return ok && placeholderSuffixRe.MatchString(rest)
}

// Allocate picks a slug for a new item and inserts it through insert.
//
// When base is free the item is inserted with slug == base. Otherwise (or
// when the insert is rejected with ErrTaken) the item is inserted under a
// placeholder and then renamed to Suffixed(base, id). The probe is not
// repeated after a collision.
func (a *Allocator) Allocate(ctx context.Context, base string, insert InsertFunc) (Result, error) {
	if base == "" {
		return Result{}, ErrEmptyBase
	}

	taken, err := a.store.SlugTaken(ctx, base, "")
	if err != nil {
		return Result{}, &StoreError{Op: "probe", Err: err}
	}

	path := PathSuffixed
	if !taken {
		id, err := insert(ctx, base)
		switch {
		case err == nil:
			return Result{ID: id, Slug: base, Path: PathDirect}, nil
		case errors.Is(err, ErrTaken):
			path = PathRaced
		default:
			return Result{}, &StoreError{Op: "insert", Err: err}
		}
	}

	id, placeholder, err := a.insertPlaceholder(ctx, base, insert)
	if err != nil {
		return Result{}, err
	}

	final := Suffixed(base, id)
	if err := a.store.SetSlug(ctx, id, final); err != nil {
		return Result{ID: id, Slug: placeholder, Path: path}, &StoreError{Op: "finalize", Slug: placeholder, Err: err}
	}
	return Result{ID: id, Slug: final, Path: path}, nil
}

func (a *Allocator) insertPlaceholder(ctx context.Context, base string, insert InsertFunc) (string, string, error) {
	var lastErr error
	for i := 0; i < maxPlaceholderTries; i++ {
		placeholder := a.Placeholder(base)
		id, err := insert(ctx, placeholder)
		if err == nil {
			return id, placeholder, nil
		}
		if !errors.Is(err, ErrTaken) {
			return "", "", &StoreError{Op: "insert placeholder", Err: err}
		}
		lastErr = err
	}
	return "", "", &StoreError{Op: "insert placeholder", Err: lastErr}
}

// Reallocate picks a slug for an existing item after its title changed and
// writes it through write.
//
// The probe ignores the item itself, so an unchanged title keeps its slug.
// A collision with a different item goes straight to Suffixed(base, id); no
// placeholder is needed because the id is already known.
func (a *Allocator) Reallocate(ctx context.Context, base, id string, write WriteFunc) (Result, error) {
	if base == "" {
		return Result{}, ErrEmptyBase
	}

	taken, err := a.store.SlugTaken(ctx, base, id)
	if err != nil {
		return Result{}, &StoreError{Op: "probe", Err: err}
	}

	path := PathSuffixed
	if !taken {
		err := write(ctx, base)
		switch {
		case err == nil:
			return Result{ID: id, Slug: base, Path: PathDirect}, nil
		case errors.Is(err, ErrTaken):
			path = PathRaced
		default:
			return Result{}, &StoreError{Op: "write", Err: err}
		}
	}

	final := Suffixed(base, id)
	if err := write(ctx, final); err != nil {
		return Result{}, &StoreError{Op: "write", Err: err}
	}
	return Result{ID: id, Slug: final, Path: path}, nil
}

// Finalize renames an item stuck on a placeholder to Suffixed(base, id).
func (a *Allocator) Finalize(ctx context.Context, base, id string) (string, error) {
	if base == "" {
		return "", ErrEmptyBase
	}
	final := Suffixed(base, id)
	if err := a.store.SetSlug(ctx, id, final); err != nil {
		return "", &StoreError{Op: "finalize", Err: err}
	}
	return final, nil
}
