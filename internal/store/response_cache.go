package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheStats summarizes the response cache.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Hits    int64 `json:"hits"`
}

// GetResponse returns the cached answer for key if it has not expired.
func (s *Store) GetResponse(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.DB == nil {
		return "", false, ErrNotInitialized
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("cache key is required")
	}

	var text string
	row := s.DB.QueryRowContext(ctx, `
		SELECT response_text
		FROM response_cache
		WHERE prompt_hash = ? AND expires_at > ?
	`, key, time.Now().UTC().Unix())
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fetch cached response: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE response_cache SET hits = hits + 1 WHERE prompt_hash = ?`, key); err != nil {
		return "", false, fmt.Errorf("record cache hit: %w", err)
	}

	return text, true, nil
}

// SetResponse stores an answer for ttl. A non-positive ttl is a no-op.
func (s *Store) SetResponse(ctx context.Context, key, provider, model, text string, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return ErrNotInitialized
	}
	if ttl <= 0 {
		return nil
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}

	now := time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO response_cache (prompt_hash, provider, model, response_text, hits, created_at, expires_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(prompt_hash) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			response_text = excluded.response_text,
			hits = 0,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, provider, model, text, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}

// PruneExpired deletes expired entries and returns how many were removed.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, ErrNotInitialized
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune response cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune response cache: %w", err)
	}
	return n, nil
}

// ClearResponses deletes every cached entry.
func (s *Store) ClearResponses(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, ErrNotInitialized
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear response cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear response cache: %w", err)
	}
	return n, nil
}

// CacheStats counts live and expired entries and total hits.
func (s *Store) CacheStats(ctx context.Context) (CacheStats, error) {
	if s == nil || s.DB == nil {
		return CacheStats{}, ErrNotInitialized
	}

	var (
		stats   CacheStats
		expired sql.NullInt64
		hits    sql.NullInt64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END),
			SUM(hits)
		FROM response_cache
	`, time.Now().UTC().Unix())
	if err := row.Scan(&stats.Entries, &expired, &hits); err != nil {
		return CacheStats{}, fmt.Errorf("read cache stats: %w", err)
	}
	stats.Expired = expired.Int64
	stats.Hits = hits.Int64
	return stats, nil
}
