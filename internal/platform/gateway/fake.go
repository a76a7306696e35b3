package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-process Gateway for tests and local development. Orders and
// payments are kept in memory; signatures are real HMACs under Secret.
type Fake struct {
	Secret        string
	WebhookSecret string
	Key           string
	Err           error

	mu       sync.Mutex
	seq      int
	Orders   []*Order
	Payments map[string]*Payment
}

func NewFake(secret string) *Fake {
	return &Fake{
		Secret:        secret,
		WebhookSecret: secret,
		Key:           "rzp_test_fake",
		Payments:      make(map[string]*Payment),
	}
}

func (f *Fake) KeyID() string { return f.Key }

func (f *Fake) CreateOrder(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, f.Err)
	}
	f.seq++
	o := &Order{
		ID:       fmt.Sprintf("order_fake%04d", f.seq),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}
	f.Orders = append(f.Orders, o)
	return o, nil
}

func (f *Fake) FetchPayment(_ context.Context, paymentID string) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, f.Err)
	}
	p, ok := f.Payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("%w: payment %s not found", ErrGateway, paymentID)
	}
	return p, nil
}

func (f *Fake) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(orderID, paymentID, signature, f.Secret)
}

func (f *Fake) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifyBodySignature(body, signature, f.WebhookSecret)
}

// SignCheckout produces the signature a client would receive after paying.
func (f *Fake) SignCheckout(orderID, paymentID string) string {
	return Sign([]byte(orderID+"|"+paymentID), f.Secret)
}

// OrderCount reports how many orders were created.
func (f *Fake) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders)
}
