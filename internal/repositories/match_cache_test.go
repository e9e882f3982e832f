package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-matcher/internal/models"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEntry(key, cvID, jobID string, created time.Time) *models.CacheEntry {
	return &models.CacheEntry{
		Key:            key,
		CVID:           cvID,
		JobID:          jobID,
		ScoringVersion: "v4.0",
		Result:         `{"overall_score": 70}`,
		Facts:          `{"summary": "x"}`,
		Requirements:   `{"title": "y"}`,
		CreatedAt:      created,
		ExpiresAt:      created.Add(time.Hour),
	}
}

// repositoryContract runs the same behaviour checks against every backend.
func repositoryContract(t *testing.T, newRepo func(t *testing.T) MatchCacheRepository) {
	ctx := context.Background()

	t.Run("get honours expiry", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, newEntry("k1", "cv-1", "job-1", baseTime)))

		got, err := repo.Get(ctx, "k1", baseTime.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, "cv-1", got.CVID)
		assert.Equal(t, "v4.0", got.ScoringVersion)
		assert.Equal(t, `{"overall_score": 70}`, got.Result)
		assert.WithinDuration(t, baseTime.Add(time.Hour), got.ExpiresAt, 0)

		_, err = repo.Get(ctx, "k1", baseTime.Add(time.Hour))
		assert.ErrorIs(t, err, ErrCacheMiss)
		_, err = repo.Get(ctx, "other", baseTime)
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("put replaces the pair", func(t *testing.T) {
		repo := newRepo(t)
		first := newEntry("k1", "cv-1", "job-1", baseTime)
		require.NoError(t, repo.Put(ctx, first))
		assert.NotEmpty(t, first.ID.String())

		require.NoError(t, repo.Put(ctx, newEntry("k2", "cv-1", "job-1", baseTime.Add(time.Minute))))

		_, err := repo.Get(ctx, "k1", baseTime)
		assert.ErrorIs(t, err, ErrCacheMiss)

		latest, err := repo.GetLatest(ctx, "cv-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, "k2", latest.Key)

		_, err = repo.GetLatest(ctx, "cv-1", "job-2")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("get latest ignores expiry", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, newEntry("k1", "cv-1", "job-1", baseTime.Add(-2*time.Hour))))

		latest, err := repo.GetLatest(ctx, "cv-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, "k1", latest.Key)
	})

	t.Run("latest for cv and job", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, newEntry("k1", "cv-1", "job-1", baseTime)))
		newer := newEntry("k2", "cv-1", "job-2", baseTime.Add(time.Minute))
		newer.Facts = `{"summary": "newer"}`
		require.NoError(t, repo.Put(ctx, newer))
		noFacts := newEntry("k3", "cv-2", "job-1", baseTime.Add(2*time.Minute))
		noFacts.Facts = ""
		require.NoError(t, repo.Put(ctx, noFacts))

		byCV, err := repo.LatestForCV(ctx, "cv-1")
		require.NoError(t, err)
		assert.Equal(t, `{"summary": "newer"}`, byCV.Facts)

		_, err = repo.LatestForCV(ctx, "cv-2")
		assert.ErrorIs(t, err, ErrCacheMiss)

		byJob, err := repo.LatestForJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "k3", byJob.Key)

		_, err = repo.LatestForJob(ctx, "job-9")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("delete by pair", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, newEntry("k1", "cv-1", "job-1", baseTime)))
		require.NoError(t, repo.Put(ctx, newEntry("k2", "cv-1", "job-2", baseTime)))

		n, err := repo.DeleteByPair(ctx, "cv-1", "job-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.DeleteByPair(ctx, "cv-1", "job-1")
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = repo.GetLatest(ctx, "cv-1", "job-2")
		assert.NoError(t, err)
	})

	t.Run("purge expired", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Put(ctx, newEntry("old", "cv-1", "job-1", baseTime.Add(-3*time.Hour))))
		require.NoError(t, repo.Put(ctx, newEntry("edge", "cv-2", "job-1", baseTime.Add(-time.Hour))))
		require.NoError(t, repo.Put(ctx, newEntry("fresh", "cv-3", "job-1", baseTime)))

		n, err := repo.PurgeExpired(ctx, baseTime)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = repo.Get(ctx, "fresh", baseTime)
		assert.NoError(t, err)
		_, err = repo.GetLatest(ctx, "cv-2", "job-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestMemoryMatchCacheRepository(t *testing.T) {
	repositoryContract(t, func(*testing.T) MatchCacheRepository {
		return NewMemoryMatchCacheRepository()
	})
}

func TestSQLiteMatchCacheRepository(t *testing.T) {
	repositoryContract(t, func(t *testing.T) MatchCacheRepository {
		repo, err := NewSQLiteMatchCacheRepository(filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMemoryRepositoryCopiesEntries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMatchCacheRepository()

	entry := newEntry("k1", "cv-1", "job-1", baseTime)
	require.NoError(t, repo.Put(ctx, entry))
	entry.Result = "mutated"

	got, err := repo.GetLatest(ctx, "cv-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, `{"overall_score": 70}`, got.Result)

	got.Key = "changed"
	again, err := repo.GetLatest(ctx, "cv-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", again.Key)
}

func TestPrepareEntryNormalisesTimes(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	entry := &models.CacheEntry{CreatedAt: baseTime.In(loc), ExpiresAt: baseTime.Add(time.Hour).In(loc)}

	prepareEntry(entry)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", entry.ID.String())
	assert.Equal(t, time.UTC, entry.CreatedAt.Location())
	assert.True(t, entry.CreatedAt.Equal(baseTime))
}
