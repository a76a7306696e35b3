package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/medbook/booking/internal/platform/db"
)

// PGLimiter keeps windows in the otp_rate_limits table so every instance
// shares the same counts. Each Allow is a single upsert.
type PGLimiter struct {
	q      db.Querier
	max    int
	period time.Duration
}

func NewPGLimiter(q db.Querier, max int, period time.Duration) *PGLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &PGLimiter{q: q, max: max, period: period}
}

const upsertWindow = `
INSERT INTO otp_rate_limits (key, count, reset_at)
VALUES ($1, 1, NOW() + ($2::bigint * INTERVAL '1 millisecond'))
ON CONFLICT (key) DO UPDATE SET
    count = CASE
        WHEN otp_rate_limits.reset_at < NOW() THEN 1
        ELSE otp_rate_limits.count + 1
    END,
    reset_at = CASE
        WHEN otp_rate_limits.reset_at < NOW() THEN EXCLUDED.reset_at
        ELSE otp_rate_limits.reset_at
    END
RETURNING count`

func (l *PGLimiter) Allow(ctx context.Context, key string) (bool, error) {
	var count int
	if err := l.q.QueryRow(ctx, upsertWindow, key, l.period.Milliseconds()).Scan(&count); err != nil {
		return false, fmt.Errorf("rate limit window: %w", err)
	}
	return count <= l.max, nil
}

// Cleanup removes finished windows and returns how many were deleted.
func (l *PGLimiter) Cleanup(ctx context.Context) (int64, error) {
	tag, err := l.q.Exec(ctx, `DELETE FROM otp_rate_limits WHERE reset_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit windows: %w", err)
	}
	return tag.RowsAffected(), nil
}
