package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"alfredoptarigan/cv-matcher/internal/models"
)

// ErrCacheMiss is a control-flow signal, not a failure: callers recompute.
var ErrCacheMiss = errors.New("cache miss")

// MatchCacheRepository persists cache entries. At most one entry exists per
// (cv_id, job_id) pair; Put replaces whatever was stored for the pair.
type MatchCacheRepository interface {
	// Get returns the newest unexpired entry stored under key.
	Get(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error)
	// GetLatest returns the pair's entry whether or not it has expired.
	GetLatest(ctx context.Context, cvID, jobID string) (*models.CacheEntry, error)
	LatestForCV(ctx context.Context, cvID string) (*models.CacheEntry, error)
	LatestForJob(ctx context.Context, jobID string) (*models.CacheEntry, error)
	Put(ctx context.Context, entry *models.CacheEntry) error
	DeleteByPair(ctx context.Context, cvID, jobID string) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type gormMatchCacheRepository struct {
	db *gorm.DB
}

func NewMatchCacheRepository(db *gorm.DB) MatchCacheRepository {
	return &gormMatchCacheRepository{db: db}
}

func (r *gormMatchCacheRepository) Get(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	return r.first(ctx, "cache entry", "cache_key = ? AND expires_at > ?", key, now.UTC())
}

func (r *gormMatchCacheRepository) GetLatest(ctx context.Context, cvID, jobID string) (*models.CacheEntry, error) {
	return r.first(ctx, "cache entry", "cv_id = ? AND job_id = ?", cvID, jobID)
}

func (r *gormMatchCacheRepository) LatestForCV(ctx context.Context, cvID string) (*models.CacheEntry, error) {
	return r.first(ctx, "cv facts", "cv_id = ? AND facts <> ''", cvID)
}

func (r *gormMatchCacheRepository) LatestForJob(ctx context.Context, jobID string) (*models.CacheEntry, error) {
	return r.first(ctx, "job requirements", "job_id = ? AND requirements <> ''", jobID)
}

func (r *gormMatchCacheRepository) first(ctx context.Context, what string, query string, args ...any) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to find %s: %w", what, err)
	}
	return &entry, nil
}

func (r *gormMatchCacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	prepareEntry(entry)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cv_id = ? AND job_id = ?", entry.CVID, entry.JobID).
			Delete(&models.CacheEntry{}).Error; err != nil {
			return fmt.Errorf("failed to replace cache entry: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to create cache entry: %w", err)
		}
		return nil
	})
}

func (r *gormMatchCacheRepository) DeleteByPair(ctx context.Context, cvID, jobID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("cv_id = ? AND job_id = ?", cvID, jobID).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to invalidate cache entry: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormMatchCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
