package otp

import (
	"context"
	"time"
)

// Repository persists one-time codes.
type Repository interface {
	// Upsert replaces any code for phone with a fresh, unused one.
	Upsert(ctx context.Context, phone, code string, expiresAt time.Time) error
	// Consume marks the matching unused, unexpired code as used and reports
	// whether one was found. It succeeds at most once per issued code.
	Consume(ctx context.Context, phone, code string) (bool, error)
	// DeleteExpired removes expired codes whether used or not.
	DeleteExpired(ctx context.Context) (int64, error)
}
