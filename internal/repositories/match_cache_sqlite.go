package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"alfredoptarigan/cv-matcher/internal/models"
)

const cacheColumns = `id, cache_key, cv_id, job_id, scoring_version, result, facts, requirements, created_at, expires_at`

// SQLiteMatchCacheRepository stores cache entries in a single SQLite file, for
// single-node deployments and the CLI.
type SQLiteMatchCacheRepository struct {
	db *sqlx.DB
}

func NewSQLiteMatchCacheRepository(dbPath string) (*SQLiteMatchCacheRepository, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	repo := &SQLiteMatchCacheRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteMatchCacheRepository) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS match_cache_entries (
			id TEXT PRIMARY KEY,
			cache_key TEXT NOT NULL,
			cv_id TEXT NOT NULL,
			job_id TEXT NOT NULL,
			scoring_version TEXT NOT NULL,
			result TEXT NOT NULL,
			facts TEXT NOT NULL DEFAULT '',
			requirements TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_cache_key ON match_cache_entries(cache_key)`,
		`CREATE INDEX IF NOT EXISTS idx_match_cache_pair ON match_cache_entries(cv_id, job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_cache_expires ON match_cache_entries(expires_at)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

func (r *SQLiteMatchCacheRepository) Get(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	return r.first(ctx, `WHERE cache_key = ? AND expires_at > ?`, key, now.UTC())
}

func (r *SQLiteMatchCacheRepository) GetLatest(ctx context.Context, cvID, jobID string) (*models.CacheEntry, error) {
	return r.first(ctx, `WHERE cv_id = ? AND job_id = ?`, cvID, jobID)
}

func (r *SQLiteMatchCacheRepository) LatestForCV(ctx context.Context, cvID string) (*models.CacheEntry, error) {
	return r.first(ctx, `WHERE cv_id = ? AND facts <> ''`, cvID)
}

func (r *SQLiteMatchCacheRepository) LatestForJob(ctx context.Context, jobID string) (*models.CacheEntry, error) {
	return r.first(ctx, `WHERE job_id = ? AND requirements <> ''`, jobID)
}

func (r *SQLiteMatchCacheRepository) first(ctx context.Context, where string, args ...any) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	query := `SELECT ` + cacheColumns + ` FROM match_cache_entries ` + where + ` ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return &entry, nil
}

func (r *SQLiteMatchCacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	prepareEntry(entry)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_cache_entries WHERE cv_id = ? AND job_id = ?`, entry.CVID, entry.JobID); err != nil {
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}

	_, err = tx.NamedExecContext(ctx, `INSERT INTO match_cache_entries (`+cacheColumns+`)
		VALUES (:id, :cache_key, :cv_id, :job_id, :scoring_version, :result, :facts, :requirements, :created_at, :expires_at)`, entry)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteMatchCacheRepository) DeleteByPair(ctx context.Context, cvID, jobID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM match_cache_entries WHERE cv_id = ? AND job_id = ?`, cvID, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteMatchCacheRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM match_cache_entries WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteMatchCacheRepository) Close() error {
	return r.db.Close()
}
