package slug

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// memStore is an in-memory collection with a unique slug constraint.
type memStore struct {
	mu     sync.Mutex
	slugs  map[string]string // id -> slug
	nextID int

	staleProbe bool  // probe always reports free
	probeErr   error // returned by SlugTaken
	setErr     error // returned by SetSlug
	probes     int
}

func newMemStore() *memStore {
	return &memStore{slugs: map[string]string{}}
}

func (m *memStore) SlugTaken(_ context.Context, slug, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	if m.probeErr != nil {
		return false, m.probeErr
	}
	if m.staleProbe {
		return false, nil
	}
	for id, s := range m.slugs {
		if s == slug && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SetSlug(_ context.Context, id, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	return m.writeLocked(id, slug)
}

func (m *memStore) writeLocked(id, slug string) error {
	for other, s := range m.slugs {
		if s == slug && other != id {
			return ErrTaken
		}
	}
	m.slugs[id] = slug
	return nil
}

func (m *memStore) insert(_ context.Context, slug string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slugs {
		if s == slug {
			return "", ErrTaken
		}
	}
	m.nextID++
	id := strconv.Itoa(m.nextID)
	m.slugs[id] = slug
	return id, nil
}

func (m *memStore) writer(id string) WriteFunc {
	return func(_ context.Context, slug string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.writeLocked(id, slug)
	}
}

func (m *memStore) slugOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugs[id]
}

func TestAllocate_FreeBase(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)

	res, err := a.Allocate(context.Background(), "pho-bo", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if res.Slug != "pho-bo" {
		t.Errorf("Slug = %q, want %q", res.Slug, "pho-bo")
	}
	if res.Path != PathDirect {
		t.Errorf("Path = %q, want %q", res.Path, PathDirect)
	}
	if store.slugOf(res.ID) != "pho-bo" {
		t.Errorf("stored slug = %q, want %q", store.slugOf(res.ID), "pho-bo")
	}
}

func TestAllocate_CollisionUsesOwnID(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	first, err := a.Allocate(ctx, "pho-bo-dac-biet", store.insert)
	if err != nil {
		t.Fatalf("first Allocate() error = %v", err)
	}
	second, err := a.Allocate(ctx, "pho-bo-dac-biet", store.insert)
	if err != nil {
		t.Fatalf("second Allocate() error = %v", err)
	}

	if first.Slug != "pho-bo-dac-biet" {
		t.Errorf("first Slug = %q, want %q", first.Slug, "pho-bo-dac-biet")
	}
	want := "pho-bo-dac-biet-" + second.ID
	if second.Slug != want {
		t.Errorf("second Slug = %q, want %q", second.Slug, want)
	}
	if second.Path != PathSuffixed {
		t.Errorf("second Path = %q, want %q", second.Path, PathSuffixed)
	}
	if store.slugOf(second.ID) != want {
		t.Errorf("stored slug = %q, want %q", store.slugOf(second.ID), want)
	}
}

func TestAllocate_DoesNotReprobeAfterCollision(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "soup", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	store.probes = 0
	if _, err := a.Allocate(ctx, "soup", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if store.probes != 1 {
		t.Errorf("probes = %d, want 1", store.probes)
	}
}

func TestAllocate_SequentialSlugsAreDistinct(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	bases := []string{"soup", "salad", "soup", "soup-2", "salad", "soup", "cake"}
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		for _, base := range bases {
			res, err := a.Allocate(ctx, base, store.insert)
			if err != nil {
				t.Fatalf("Allocate(%q) error = %v", base, err)
			}
			if seen[res.Slug] {
				t.Fatalf("duplicate slug %q", res.Slug)
			}
			seen[res.Slug] = true
		}
	}
}

func TestAllocate_ConcurrentSameBase(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	const n = 25
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.Allocate(ctx, "banh-mi", store.insert)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Allocate() error = %v", errs[i])
		}
		if seen[results[i].Slug] {
			t.Fatalf("duplicate slug %q", results[i].Slug)
		}
		seen[results[i].Slug] = true
	}
}

func TestAllocate_LostProbeRaceFallsBackToSuffix(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "curry", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	// The probe misses the existing item, as if it were written after the read.
	store.staleProbe = true
	res, err := a.Allocate(ctx, "curry", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if res.Path != PathRaced {
		t.Errorf("Path = %q, want %q", res.Path, PathRaced)
	}
	if res.Slug != "curry-"+res.ID {
		t.Errorf("Slug = %q, want %q", res.Slug, "curry-"+res.ID)
	}
}

func TestAllocate_FinalizeFailureLeavesPlaceholder(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	a.suffix = func() string { return "0a1b2c3d" }
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "stew", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	store.setErr = errors.New("connection reset")
	res, err := a.Allocate(ctx, "stew", store.insert)
	if err == nil {
		t.Fatal("Allocate() expected error when finalize fails")
	}

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *StoreError", err)
	}
	if se.Op != "finalize" {
		t.Errorf("Op = %q, want %q", se.Op, "finalize")
	}
	if se.Slug != "stew-temp-0a1b2c3d" {
		t.Errorf("StoreError.Slug = %q, want %q", se.Slug, "stew-temp-0a1b2c3d")
	}
	if res.ID == "" || store.slugOf(res.ID) != "stew-temp-0a1b2c3d" {
		t.Errorf("item should remain reachable under the placeholder, got %q", store.slugOf(res.ID))
	}
	if !IsPlaceholder(se.Slug, "stew") {
		t.Errorf("IsPlaceholder(%q, stew) = false", se.Slug)
	}

	store.setErr = nil
	final, err := a.Finalize(ctx, "stew", res.ID)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if final != "stew-"+res.ID || store.slugOf(res.ID) != final {
		t.Errorf("Finalize() = %q, stored %q", final, store.slugOf(res.ID))
	}
}

func TestAllocate_ProbeErrorWritesNothing(t *testing.T) {
	store := newMemStore()
	store.probeErr = errors.New("timeout")
	a := NewAllocator(store)

	inserted := false
	_, err := a.Allocate(context.Background(), "pie", func(ctx context.Context, slug string) (string, error) {
		inserted = true
		return "1", nil
	})

	var se *StoreError
	if !errors.As(err, &se) || se.Op != "probe" {
		t.Fatalf("Allocate() error = %v, want probe StoreError", err)
	}
	if inserted {
		t.Error("insert should not run after a failed probe")
	}
	if !errors.Is(err, store.probeErr) {
		t.Error("StoreError should unwrap to the store error")
	}
}

func TestAllocate_InsertError(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	boom := errors.New("disk full")

	_, err := a.Allocate(context.Background(), "pie", func(ctx context.Context, slug string) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Allocate() error = %v, want %v", err, boom)
	}
}

func TestAllocate_EmptyBase(t *testing.T) {
	a := NewAllocator(newMemStore())
	if _, err := a.Allocate(context.Background(), "", nil); !errors.Is(err, ErrEmptyBase) {
		t.Errorf("Allocate(\"\") error = %v, want ErrEmptyBase", err)
	}
	if _, err := a.Reallocate(context.Background(), "", "1", nil); !errors.Is(err, ErrEmptyBase) {
		t.Errorf("Reallocate(\"\") error = %v, want ErrEmptyBase", err)
	}
}

func TestReallocate_UnchangedTitleKeepsSlug(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	res, err := a.Allocate(ctx, "ramen", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	again, err := a.Reallocate(ctx, "ramen", res.ID, store.writer(res.ID))
	if err != nil {
		t.Fatalf("Reallocate() error = %v", err)
	}
	if again.Slug != res.Slug {
		t.Errorf("Reallocate() = %q, want unchanged %q", again.Slug, res.Slug)
	}
}

func TestReallocate_SuffixedItemStaysSuffixed(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "ramen", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := a.Allocate(ctx, "ramen", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	again, err := a.Reallocate(ctx, "ramen", second.ID, store.writer(second.ID))
	if err != nil {
		t.Fatalf("Reallocate() error = %v", err)
	}
	if again.Slug != second.Slug {
		t.Errorf("Reallocate() = %q, want unchanged %q", again.Slug, second.Slug)
	}
}

func TestReallocate_CollisionSkipsPlaceholder(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "tacos", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	other, err := a.Allocate(ctx, "nachos", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	var written []string
	write := func(ctx context.Context, slug string) error {
		written = append(written, slug)
		return store.writer(other.ID)(ctx, slug)
	}
	res, err := a.Reallocate(ctx, "tacos", other.ID, write)
	if err != nil {
		t.Fatalf("Reallocate() error = %v", err)
	}
	want := "tacos-" + other.ID
	if res.Slug != want {
		t.Errorf("Reallocate() = %q, want %q", res.Slug, want)
	}
	if len(written) != 1 || strings.Contains(written[0], placeholderMarker) {
		t.Errorf("writes = %v, want a single write of %q", written, want)
	}
}

func TestReallocate_LostRace(t *testing.T) {
	store := newMemStore()
	a := NewAllocator(store)
	ctx := context.Background()

	if _, err := a.Allocate(ctx, "tacos", store.insert); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	other, err := a.Allocate(ctx, "nachos", store.insert)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	store.staleProbe = true
	res, err := a.Reallocate(ctx, "tacos", other.ID, store.writer(other.ID))
	if err != nil {
		t.Fatalf("Reallocate() error = %v", err)
	}
	if res.Path != PathRaced || res.Slug != "tacos-"+other.ID {
		t.Errorf("Reallocate() = %+v, want raced tacos-%s", res, other.ID)
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		slug string
		base string
		want bool
	}{
		{"soup-temp-0a1b2c3d", "soup", true},
		{"soup", "soup", false},
		{"soup-temp", "soup", false},
		{"soup-temp-xyz", "soup", false},
		{"soup-temp-0a1b2c3d9", "soup", false},
		{"temp-soup", "soup", false},
		{"soup-65f0c0ffee0000000000abcd", "soup", false},
		{"stew-temp-0a1b2c3d", "soup", false},
		{"soup-temp-0a1b2c3d", "", false},
		// a title that transliterates to the placeholder shape
		{"soup-temp-1a2b3c4d", "soup-temp-1a2b3c4d", false},
		{"soup-temp-1a2b3c4d-temp-00ff00ff", "soup-temp-1a2b3c4d", true},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.slug, tt.base); got != tt.want {
			t.Errorf("IsPlaceholder(%q, %q) = %v, want %v", tt.slug, tt.base, got, tt.want)
		}
	}
}

func TestStoreError_Message(t *testing.T) {
	err := &StoreError{Op: "finalize", Slug: "x-temp-12345678", Err: errors.New("boom")}
	if !strings.Contains(err.Error(), "x-temp-12345678") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q", err.Error())
	}
}
