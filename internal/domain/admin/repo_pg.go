package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

// -- Admin Repository --

type adminRepoPG struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) AdminRepository {
	return &adminRepoPG{pool: pool}
}

func (r *adminRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const adminCols = `id, username, password_hash, is_active, last_login, created_at, updated_at`

func (r *adminRepoPG) scanAdmin(row pgx.Row) (*Admin, error) {
	var a Admin
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsActive, &a.LastLogin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *adminRepoPG) Create(ctx context.Context, a *Admin) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admins (id, username, password_hash, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		a.ID, a.Username, a.PasswordHash, a.IsActive).Scan(&a.CreatedAt, &a.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (r *adminRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	return r.scanAdmin(r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admins WHERE id = $1`, id))
}

// GetByUsername matches case-sensitively.
func (r *adminRepoPG) GetByUsername(ctx context.Context, username string) (*Admin, error) {
	return r.scanAdmin(r.conn(ctx).QueryRow(ctx, `SELECT `+adminCols+` FROM admins WHERE username = $1`, username))
}

func (r *adminRepoPG) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE admins SET last_login = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

// -- Activity Repository --

type activityRepoPG struct {
	pool *pgxpool.Pool
}

func NewActivityRepo(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepoPG{pool: pool}
}

func (r *activityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *activityRepoPG) Record(ctx context.Context, a *Activity) error {
	a.ID = uuid.New()
	details := a.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admin_activity_log (id, admin_id, action, target_user_id, details, ip_address)
		VALUES ($1, $2, $3, $4, $5::jsonb, NULLIF($6, ''))
		RETURNING created_at`,
		a.ID, a.AdminID, a.Action, a.TargetUserID, string(details), a.IPAddress).Scan(&a.CreatedAt)
}

func (r *activityRepoPG) List(ctx context.Context, adminID *uuid.UUID, limit, offset int) ([]*Activity, int, error) {
	where := ""
	args := []interface{}{}
	if adminID != nil {
		where = " WHERE admin_id = $1"
		args = append(args, *adminID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admin_activity_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT id, admin_id, action, target_user_id, details, COALESCE(ip_address, ''), created_at
		FROM admin_activity_log%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		var a Activity
		var details []byte
		if err := rows.Scan(&a.ID, &a.AdminID, &a.Action, &a.TargetUserID, &details, &a.IPAddress, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.Details = json.RawMessage(details)
		out = append(out, &a)
	}
	return out, total, rows.Err()
}
