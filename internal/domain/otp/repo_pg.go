package otp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

type otpRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &otpRepoPG{pool: pool}
}

func (r *otpRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *otpRepoPG) Upsert(ctx context.Context, phone, code string, expiresAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO otp_tokens (phone, code, expires_at, used, used_at, created_at)
		VALUES ($1, $2, $3, FALSE, NULL, NOW())
		ON CONFLICT (phone) DO UPDATE SET
			code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at,
			used = FALSE,
			used_at = NULL,
			created_at = NOW()`,
		phone, code, expiresAt)
	return err
}

func (r *otpRepoPG) Consume(ctx context.Context, phone, code string) (bool, error) {
	var id string
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE otp_tokens SET used = TRUE, used_at = NOW()
		WHERE phone = $1 AND code = $2 AND used = FALSE AND expires_at > NOW()
		RETURNING id::text`,
		phone, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *otpRepoPG) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM otp_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
