package repositories

import (
	"context"
	"sync"
	"time"

	"alfredoptarigan/cv-matcher/internal/models"
)

type memoryMatchCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemoryMatchCacheRepository keeps entries in process memory. Entries are
// copied in and out so callers never share state with the store.
func NewMemoryMatchCacheRepository() MatchCacheRepository {
	return &memoryMatchCacheRepository{entries: make(map[string]models.CacheEntry)}
}

func pairKey(cvID, jobID string) string {
	return cvID + "\x00" + jobID
}

func (r *memoryMatchCacheRepository) Get(_ context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	return r.latest(func(e models.CacheEntry) bool {
		return e.Key == key && !e.Expired(now)
	})
}

func (r *memoryMatchCacheRepository) GetLatest(_ context.Context, cvID, jobID string) (*models.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[pairKey(cvID, jobID)]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (r *memoryMatchCacheRepository) LatestForCV(_ context.Context, cvID string) (*models.CacheEntry, error) {
	return r.latest(func(e models.CacheEntry) bool {
		return e.CVID == cvID && e.Facts != ""
	})
}

func (r *memoryMatchCacheRepository) LatestForJob(_ context.Context, jobID string) (*models.CacheEntry, error) {
	return r.latest(func(e models.CacheEntry) bool {
		return e.JobID == jobID && e.Requirements != ""
	})
}

func (r *memoryMatchCacheRepository) latest(match func(models.CacheEntry) bool) (*models.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.CacheEntry
	for _, e := range r.entries {
		if !match(e) {
			continue
		}
		if best == nil || e.CreatedAt.After(best.CreatedAt) {
			e := e
			best = &e
		}
	}
	if best == nil {
		return nil, ErrCacheMiss
	}
	return best, nil
}

func (r *memoryMatchCacheRepository) Put(_ context.Context, entry *models.CacheEntry) error {
	prepareEntry(entry)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[pairKey(entry.CVID, entry.JobID)] = *entry
	return nil
}

func (r *memoryMatchCacheRepository) DeleteByPair(_ context.Context, cvID, jobID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(cvID, jobID)
	if _, ok := r.entries[key]; !ok {
		return 0, nil
	}
	delete(r.entries, key)
	return 1, nil
}

func (r *memoryMatchCacheRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key, e := range r.entries {
		if e.Expired(now) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed, nil
}
