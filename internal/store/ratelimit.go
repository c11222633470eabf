package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agritutor/agritutor/internal/tutor"
)

// GetRateLimit returns the stored request window for a provider, or nil.
func (s *Store) GetRateLimit(ctx context.Context, provider string) (*tutor.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, errors.New("provider is required")
	}

	var (
		requestCount int
		windowStart  int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start
		FROM rate_limits
		WHERE provider = ?
	`, provider)

	if err := row.Scan(&requestCount, &windowStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return &tutor.RateLimitState{
		RequestCount: requestCount,
		WindowStart:  time.Unix(windowStart, 0).UTC(),
	}, nil
}

// UpdateRateLimit upserts the request window for a provider.
func (s *Store) UpdateRateLimit(ctx context.Context, provider string, state *tutor.RateLimitState) error {
	if s == nil || s.DB == nil {
		return ErrNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	provider = strings.TrimSpace(provider)
	if provider == "" {
		return errors.New("provider is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (provider, request_count, window_start, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			updated_at = excluded.updated_at
	`, provider, state.RequestCount, state.WindowStart.UTC().Unix(), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}
	return nil
}

// ResetRateLimits forgets every provider window and backoff.
func (s *Store) ResetRateLimits(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, ErrNotInitialized
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limits`)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return res.RowsAffected()
}

var _ tutor.RateLimitStore = (*Store)(nil)
