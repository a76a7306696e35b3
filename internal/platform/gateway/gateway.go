// Package gateway adapts the external payment processor (Razorpay) behind a
// small interface: order creation, payment lookup and signature checks.
package gateway

import (
	"context"
	"errors"
)

// ErrGateway wraps every failure reported by, or while talking to, the
// payment processor. Callers map it to a user-facing message.
var ErrGateway = errors.New("payment gateway error")

// Order is a server-side reservation of an amount with the processor.
type Order struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// Payment is the processor's view of a single payment attempt.
type Payment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Gateway is the contract the payment flow depends on.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	VerifySignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}
