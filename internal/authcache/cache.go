package authcache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"voltcore/internal/models"
)

// TagStore is the persistence collaborator for identity tags. Find returns
// nil when the tag is unknown.
type TagStore interface {
	Find(ctx context.Context, tag string) (*models.IdTag, error)
}

const shardCount = 16

type cacheEntry struct {
	verdict   models.Verdict
	expiresAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// Cache resolves authorization verdicts, serving repeated lookups from an
// in-memory copy. Entries age out after the cache TTL regardless of the
// tag's own expiry: the TTL governs staleness of our copy, the tag expiry
// governs validity of the verdict itself.
type Cache struct {
	store  TagStore
	ttl    time.Duration
	logger *zap.Logger
	shards [shardCount]*shard
	now    func() time.Time
}

// New returns a cache backed by the given store.
func New(store TagStore, ttl time.Duration, logger *zap.Logger) *Cache {
	c := &Cache{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]cacheEntry)}
	}
	return c
}

func (c *Cache) shardFor(tag string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tag))
	return c.shards[h.Sum32()%shardCount]
}

// Resolve returns the verdict for a tag, consulting the store only on a
// cache miss or an expired cache entry.
func (c *Cache) Resolve(ctx context.Context, tag string) (models.Verdict, error) {
	now := c.now()

	s := c.shardFor(tag)
	s.mu.RLock()
	entry, ok := s.entries[tag]
	s.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.verdict, nil
	}

	verdict, err := c.resolveFromStore(ctx, tag, now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.entries[tag] = cacheEntry{verdict: verdict, expiresAt: now.Add(c.ttl)}
	s.mu.Unlock()

	return verdict, nil
}

func (c *Cache) resolveFromStore(ctx context.Context, tag string, now time.Time) (models.Verdict, error) {
	record, err := c.store.Find(ctx, tag)
	if err != nil {
		return "", err
	}

	verdict := decide(record, now)
	if verdict != models.VerdictAccepted || record == nil || record.ParentTag == "" {
		return verdict, nil
	}

	// One-level parent defer: a non-Accepted parent overrides the child.
	parent, err := c.store.Find(ctx, record.ParentTag)
	if err != nil {
		return "", err
	}
	parentVerdict := decide(parent, now)
	if parentVerdict != models.VerdictAccepted {
		c.logger.Info("tag deferred to parent verdict",
			zap.String("tag", tag),
			zap.String("parent_tag", record.ParentTag),
			zap.String("verdict", string(parentVerdict)))
		return parentVerdict, nil
	}
	return models.VerdictAccepted, nil
}

// decide applies the verdict precedence to a single tag record.
func decide(record *models.IdTag, now time.Time) models.Verdict {
	switch {
	case record == nil:
		return models.VerdictInvalid
	case record.Status == models.VerdictBlocked:
		return models.VerdictBlocked
	case record.ExpiryAt != nil && record.ExpiryAt.Before(now):
		return models.VerdictExpired
	default:
		return models.VerdictAccepted
	}
}

// Invalidate drops the cached entry for one tag, forcing the next Resolve
// to hit the store.
func (c *Cache) Invalidate(tag string) {
	s := c.shardFor(tag)
	s.mu.Lock()
	delete(s.entries, tag)
	s.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]cacheEntry)
		s.mu.Unlock()
	}
}
