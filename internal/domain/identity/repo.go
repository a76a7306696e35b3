package identity

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// UserRepository defines the persistence interface for users.
type UserRepository interface {
	// FindOrCreateByPhone returns the user for phone, inserting an empty
	// pending profile if none exists. created reports which happened.
	FindOrCreateByPhone(ctx context.Context, phone string) (u *User, created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	// UpdateAppointment writes the profile and details unless payment is
	// already completed, in which case it returns ErrAppointmentLocked.
	UpdateAppointment(ctx context.Context, id uuid.UUID, name, email, passport string, details json.RawMessage) (*User, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, paymentID *string) error
	SetSlipPath(ctx context.Context, id uuid.UUID, path string) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*User, int, error)
	Stats(ctx context.Context) (*Stats, error)
}
