package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

type paymentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const txCols = `id, user_id, gateway_order_id, gateway_payment_id, amount, currency,
	status, signature, receipt, created_at, updated_at`

func (r *paymentRepoPG) scan(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var status string
	err := row.Scan(&t.ID, &t.UserID, &t.GatewayOrderID, &t.GatewayPaymentID, &t.Amount, &t.Currency,
		&status, &t.Signature, &t.Receipt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, t *Transaction) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment_transactions (id, user_id, gateway_order_id, amount, currency, status, receipt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		t.ID, t.UserID, t.GatewayOrderID, t.Amount, t.Currency, string(t.Status), t.Receipt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *paymentRepoPG) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*Transaction, error) {
	q := `SELECT ` + txCols + ` FROM payment_transactions WHERE gateway_order_id = $1`
	if db.TxFromContext(ctx) != nil {
		q += ` FOR UPDATE`
	}
	return r.scan(r.conn(ctx).QueryRow(ctx, q, orderID))
}

func (r *paymentRepoPG) LatestForUser(ctx context.Context, userID uuid.UUID) (*Transaction, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+txCols+` FROM payment_transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID))
}

func (r *paymentRepoPG) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, signature *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment_transactions SET
			status = 'paid', gateway_payment_id = $2,
			signature = COALESCE($3, signature), updated_at = NOW()
		WHERE id = $1`,
		id, paymentID, signature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkFailed never downgrades a paid transaction.
func (r *paymentRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, paymentID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment_transactions SET
			status = 'failed',
			gateway_payment_id = COALESCE(NULLIF($2, ''), gateway_payment_id),
			updated_at = NOW()
		WHERE id = $1 AND status <> 'paid'`,
		id, paymentID)
	return err
}
