package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CacheEntry stores one computed MatchResult for a (CV, job) pair together with
// the canonical inputs it was computed from. Entries are replaced, never updated.
type CacheEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" db:"id" json:"id"`
	Key            string    `gorm:"type:text;not null;index" db:"cache_key" json:"cache_key"`
	CVID           string    `gorm:"type:text;not null;index:idx_match_cache_pair" db:"cv_id" json:"cv_id"`
	JobID          string    `gorm:"type:text;not null;index:idx_match_cache_pair" db:"job_id" json:"job_id"`
	ScoringVersion string    `gorm:"type:text;not null" db:"scoring_version" json:"scoring_version"`
	Result         string    `gorm:"type:text;not null" db:"result" json:"-"`
	Facts          string    `gorm:"type:text" db:"facts" json:"-"`
	Requirements   string    `gorm:"type:text" db:"requirements" json:"-"`
	CreatedAt      time.Time `gorm:"not null" db:"created_at" json:"created_at"`
	ExpiresAt      time.Time `gorm:"not null;index" db:"expires_at" json:"expires_at"`
}

func (CacheEntry) TableName() string {
	return "match_cache_entries"
}

// Expired reports whether the entry is past its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL is the lifetime the entry was stored with.
func (e *CacheEntry) TTL() time.Duration {
	return e.ExpiresAt.Sub(e.CreatedAt)
}

func (e *CacheEntry) DecodeResult() (*MatchResult, error) {
	var result MatchResult
	if err := json.Unmarshal([]byte(e.Result), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

func (e *CacheEntry) DecodeInputs() (*CVFacts, *RequirementSet, error) {
	if e.Facts == "" || e.Requirements == "" {
		return nil, nil, fmt.Errorf("cache entry %s has no stored inputs", e.ID)
	}

	var facts CVFacts
	if err := json.Unmarshal([]byte(e.Facts), &facts); err != nil {
		return nil, nil, fmt.Errorf("failed to decode cached facts: %w", err)
	}

	var reqs RequirementSet
	if err := json.Unmarshal([]byte(e.Requirements), &reqs); err != nil {
		return nil, nil, fmt.Errorf("failed to decode cached requirements: %w", err)
	}

	return &facts, &reqs, nil
}
