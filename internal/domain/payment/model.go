package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/gateway"
)

// Status is the lifecycle of a payment transaction.
type Status string

const (
	StatusCreated Status = "created"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var (
	ErrDetailsIncomplete    = errors.New("please complete appointment details first")
	ErrAlreadyPaid          = errors.New("payment already completed")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrTransactionNotFound  = errors.New("payment transaction not found")
	ErrNotTransactionOwner  = errors.New("transaction belongs to another user")
	ErrPaymentIDMismatch    = errors.New("order already paid with a different payment")
	ErrNoTransaction        = errors.New("no payment has been started")
	ErrInvalidWebhook       = errors.New("invalid webhook signature")
	ErrMalformedWebhookBody = errors.New("malformed webhook payload")
)

// Transaction maps to the payment_transactions table.
type Transaction struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	GatewayOrderID   string    `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID *string   `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	Amount           int64     `db:"amount" json:"amount"`
	Currency         string    `db:"currency" json:"currency"`
	Status           Status    `db:"status" json:"status"`
	Signature        *string   `db:"signature" json:"-"`
	Receipt          string    `db:"receipt" json:"receipt"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// OrderResult is returned by create-order. KeyID is the public key the
// checkout widget needs.
type OrderResult struct {
	Order       *gateway.Order       `json:"order"`
	User        identity.Summary     `json:"user"`
	Appointment identity.Appointment `json:"appointment"`
	KeyID       string               `json:"gateway_key_id"`
}

// VerifyRequest carries the checkout callback fields.
type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required,max=255"`
	PaymentID string `json:"razorpay_payment_id" validate:"required,max=255"`
	Signature string `json:"razorpay_signature" validate:"required,max=255"`
}

type VerifyResult struct {
	PaymentID string                 `json:"payment_id"`
	Status    identity.PaymentStatus `json:"status"`

	Transaction *Transaction     `json:"transaction"`
	User        identity.Summary `json:"user"`
	// AlreadyVerified is set when the same payment was verified before.
	AlreadyVerified bool `json:"already_verified"`
}

type StatusResult struct {
	PaymentStatus identity.PaymentStatus `json:"payment_status"`
	Transaction   *Transaction           `json:"transaction,omitempty"`
	Gateway       *gateway.Payment       `json:"gateway,omitempty"`
}

// webhookEvent is the subset of a Razorpay webhook the service reads.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity gateway.Payment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}
