package gateway

import (
	"context"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// processorAPI is the slice of the Razorpay SDK the adapter uses.
type processorAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchPayment(id string) (map[string]interface{}, error)
}

type sdkAPI struct {
	client *razorpay.Client
}

func (a sdkAPI) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return a.client.Order.Create(data, nil)
}

func (a sdkAPI) FetchPayment(id string) (map[string]interface{}, error) {
	return a.client.Payment.Fetch(id, nil, nil)
}

// RazorpayConfig holds credentials and limits for the Razorpay adapter.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// Razorpay implements Gateway on top of the official SDK.
type Razorpay struct {
	api     processorAPI
	cfg     RazorpayConfig
	timeout time.Duration
}

func NewRazorpay(cfg RazorpayConfig) *Razorpay {
	return newRazorpay(sdkAPI{client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret)}, cfg)
}

func newRazorpay(api processorAPI, cfg RazorpayConfig) *Razorpay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Razorpay{api: api, cfg: cfg, timeout: timeout}
}

func (r *Razorpay) KeyID() string { return r.cfg.KeyID }

func (r *Razorpay) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGateway)
	}

	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		n := make(map[string]interface{}, len(notes))
		for k, v := range notes {
			n[k] = v
		}
		data["notes"] = n
	}

	body, err := r.call(ctx, func() (map[string]interface{}, error) { return r.api.CreateOrder(data) })
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order := &Order{
		ID:        str(body, "id"),
		Amount:    num(body, "amount"),
		Currency:  str(body, "currency"),
		Receipt:   str(body, "receipt"),
		Status:    str(body, "status"),
		CreatedAt: num(body, "created_at"),
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order response missing id", ErrGateway)
	}
	return order, nil
}

func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrGateway)
	}

	body, err := r.call(ctx, func() (map[string]interface{}, error) { return r.api.FetchPayment(paymentID) })
	if err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}

	return &Payment{
		ID:               str(body, "id"),
		OrderID:          str(body, "order_id"),
		Amount:           num(body, "amount"),
		Currency:         str(body, "currency"),
		Status:           str(body, "status"),
		Method:           str(body, "method"),
		ErrorDescription: str(body, "error_description"),
	}, nil
}

func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(orderID, paymentID, signature, r.cfg.KeySecret)
}

func (r *Razorpay) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifyBodySignature(body, signature, r.cfg.WebhookSecret)
}

type result struct {
	body map[string]interface{}
	err  error
}

// call runs a blocking SDK request bounded by the adapter timeout and ctx.
// The SDK has no context support, so an abandoned request finishes in the
// background and its result is dropped.
func (r *Razorpay) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGateway, res.err)
		}
		return res.body, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
	}
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// num reads a JSON number, which the SDK decodes as float64.
func num(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
