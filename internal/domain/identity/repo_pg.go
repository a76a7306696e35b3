package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, phone, passport_number, appointment_details,
	payment_status::text, payment_id, appointment_slip_path, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	var details []byte
	var status string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PassportNumber, &details,
		&status, &u.PaymentID, &u.AppointmentSlipPath, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.AppointmentDetails = json.RawMessage(details)
	u.PaymentStatus = PaymentStatus(status)
	return &u, nil
}

// FindOrCreateByPhone is a single upsert so two concurrent first logins for
// the same phone resolve to one row.
func (r *userRepoPG) FindOrCreateByPhone(ctx context.Context, phone string) (*User, bool, error) {
	var u User
	var details []byte
	var status string
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (phone) VALUES ($1)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING `+userCols+`, (xmax = 0) AS created`, phone).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PassportNumber, &details,
			&status, &u.PaymentID, &u.AppointmentSlipPath, &u.CreatedAt, &u.UpdatedAt, &created)
	if err != nil {
		return nil, false, err
	}
	u.AppointmentDetails = json.RawMessage(details)
	u.PaymentStatus = PaymentStatus(status)
	return &u, created, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE phone = $1`, phone))
}

func (r *userRepoPG) UpdateAppointment(ctx context.Context, id uuid.UUID, name, email, passport string, details json.RawMessage) (*User, error) {
	u, err := r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET
			name = $2, email = $3, passport_number = $4,
			appointment_details = $5::jsonb, updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'completed'
		RETURNING `+userCols,
		id, name, email, passport, string(details)))
	if !errors.Is(err, ErrUserNotFound) {
		return u, err
	}

	// No row updated: either the user is gone or payment locked the record.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrAppointmentLocked
}

func (r *userRepoPG) SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET
			payment_status = $2::payment_status,
			payment_id = COALESCE($3, payment_id),
			updated_at = NOW()
		WHERE id = $1`,
		id, string(status), paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoPG) SetSlipPath(ctx context.Context, id uuid.UUID, path string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET appointment_slip_path = $2, updated_at = NOW() WHERE id = $1`, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// buildUserWhere returns a WHERE clause and its arguments for filter.
func buildUserWhere(filter ListFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	idx := 1

	if filter.PaymentStatus != "" {
		conds = append(conds, fmt.Sprintf("payment_status = $%d::payment_status", idx))
		args = append(args, string(filter.PaymentStatus))
		idx++
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		conds = append(conds, fmt.Sprintf(
			"(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d OR passport_number ILIKE $%d)",
			idx, idx, idx, idx))
		args = append(args, "%"+escapeLike(s)+"%")
		idx++
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *userRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*User, int, error) {
	where, args := buildUserWhere(filter)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+userCols+` FROM users%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *userRepoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE payment_status = 'pending'),
			COUNT(*) FILTER (WHERE payment_status = 'processing'),
			COUNT(*) FILTER (WHERE payment_status = 'completed'),
			COUNT(*) FILTER (WHERE payment_status = 'failed'),
			COUNT(*) FILTER (WHERE appointment_slip_path IS NOT NULL AND appointment_slip_path <> '')
		FROM users`).
		Scan(&s.Total, &s.Pending, &s.Processing, &s.Completed, &s.Failed, &s.WithSlip)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
