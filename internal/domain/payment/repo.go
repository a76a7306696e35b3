package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/medbook/booking/internal/domain/identity"
)

// Repository defines the persistence interface for payment transactions.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	// GetByOrderIDForUpdate locks the row until the surrounding transaction
	// ends. Outside a transaction it behaves like a plain read.
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (*Transaction, error)
	LatestForUser(ctx context.Context, userID uuid.UUID) (*Transaction, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, signature *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, paymentID string) error
}

// UserStore is the part of the user repository the payment flow needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status identity.PaymentStatus, paymentID *string) error
}
