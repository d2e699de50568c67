package authcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voltcore/internal/models"
)

type fakeTagStore struct {
	mu    sync.Mutex
	tags  map[string]*models.IdTag
	calls map[string]int
	err   error
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{
		tags:  make(map[string]*models.IdTag),
		calls: make(map[string]int),
	}
}

func (f *fakeTagStore) Find(ctx context.Context, tag string) (*models.IdTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[tag]++
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[tag], nil
}

func (f *fakeTagStore) callCount(tag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tag]
}

func newTestCache(store TagStore, ttl time.Duration) *Cache {
	return New(store, ttl, zap.NewNop())
}

func TestResolveUnknownTagIsInvalid(t *testing.T) {
	store := newFakeTagStore()
	cache := newTestCache(store, time.Minute)

	verdict, err := cache.Resolve(context.Background(), "NOSUCH")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictInvalid, verdict)
}

func TestResolveVerdictPrecedence(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	store := newFakeTagStore()
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}
	store.tags["BLOCKED001"] = &models.IdTag{Tag: "BLOCKED001", Status: models.VerdictBlocked}
	store.tags["EXPIRED001"] = &models.IdTag{Tag: "EXPIRED001", Status: models.VerdictAccepted, ExpiryAt: &past}
	// Blocked wins over expired when both apply.
	store.tags["BOTH001"] = &models.IdTag{Tag: "BOTH001", Status: models.VerdictBlocked, ExpiryAt: &past}

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	cases := []struct {
		tag  string
		want models.Verdict
	}{
		{"OK001", models.VerdictAccepted},
		{"BLOCKED001", models.VerdictBlocked},
		{"EXPIRED001", models.VerdictExpired},
		{"BOTH001", models.VerdictBlocked},
	}
	for _, tc := range cases {
		verdict, err := cache.Resolve(ctx, tc.tag)
		require.NoError(t, err, tc.tag)
		assert.Equal(t, tc.want, verdict, tc.tag)
	}
}

func TestResolveParentDefer(t *testing.T) {
	store := newFakeTagStore()
	store.tags["CHILD001"] = &models.IdTag{Tag: "CHILD001", Status: models.VerdictAccepted, ParentTag: "BLOCKED001"}
	store.tags["BLOCKED001"] = &models.IdTag{Tag: "BLOCKED001", Status: models.VerdictBlocked}
	store.tags["CHILD002"] = &models.IdTag{Tag: "CHILD002", Status: models.VerdictAccepted, ParentTag: "OK001"}
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	verdict, err := cache.Resolve(ctx, "CHILD001")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBlocked, verdict)

	verdict, err = cache.Resolve(ctx, "CHILD002")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictAccepted, verdict)
}

func TestResolveBlockedChildDoesNotConsultParent(t *testing.T) {
	store := newFakeTagStore()
	store.tags["CHILD001"] = &models.IdTag{Tag: "CHILD001", Status: models.VerdictBlocked, ParentTag: "OK001"}
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)

	verdict, err := cache.Resolve(context.Background(), "CHILD001")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBlocked, verdict)
	assert.Equal(t, 0, store.callCount("OK001"))
}

func TestResolveServesRepeatsFromCache(t *testing.T) {
	store := newFakeTagStore()
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		verdict, err := cache.Resolve(ctx, "OK001")
		require.NoError(t, err)
		assert.Equal(t, models.VerdictAccepted, verdict)
	}
	assert.Equal(t, 1, store.callCount("OK001"))
}

func TestResolveExpiredEntryHitsStoreAgain(t *testing.T) {
	store := newFakeTagStore()
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)
	base := time.Now().UTC()
	cache.now = func() time.Time { return base }

	ctx := context.Background()
	_, err := cache.Resolve(ctx, "OK001")
	require.NoError(t, err)

	// Tag is blocked after the cached entry ages out.
	store.mu.Lock()
	store.tags["OK001"].Status = models.VerdictBlocked
	store.mu.Unlock()

	cache.now = func() time.Time { return base.Add(61 * time.Second) }
	verdict, err := cache.Resolve(ctx, "OK001")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBlocked, verdict)
	assert.Equal(t, 2, store.callCount("OK001"))
}

func TestResolveStoreErrorIsNotCached(t *testing.T) {
	store := newFakeTagStore()
	store.err = errors.New("db down")

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "OK001")
	require.Error(t, err)

	store.mu.Lock()
	store.err = nil
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}
	store.mu.Unlock()

	verdict, err := cache.Resolve(ctx, "OK001")
	require.NoError(t, err)
	assert.Equal(t, models.VerdictAccepted, verdict)
}

func TestInvalidateForcesStoreLookup(t *testing.T) {
	store := newFakeTagStore()
	store.tags["OK001"] = &models.IdTag{Tag: "OK001", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	_, err := cache.Resolve(ctx, "OK001")
	require.NoError(t, err)

	cache.Invalidate("OK001")
	_, err = cache.Resolve(ctx, "OK001")
	require.NoError(t, err)
	assert.Equal(t, 2, store.callCount("OK001"))
}

func TestInvalidateAllDropsEveryEntry(t *testing.T) {
	store := newFakeTagStore()
	store.tags["A"] = &models.IdTag{Tag: "A", Status: models.VerdictAccepted}
	store.tags["B"] = &models.IdTag{Tag: "B", Status: models.VerdictAccepted}

	cache := newTestCache(store, time.Minute)
	ctx := context.Background()

	_, _ = cache.Resolve(ctx, "A")
	_, _ = cache.Resolve(ctx, "B")
	cache.InvalidateAll()
	_, _ = cache.Resolve(ctx, "A")
	_, _ = cache.Resolve(ctx, "B")

	assert.Equal(t, 2, store.callCount("A"))
	assert.Equal(t, 2, store.callCount("B"))
}
