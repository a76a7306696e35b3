package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/gateway"
	"github.com/medbook/booking/internal/platform/notification"
)

// -- Mocks --

type mockTxRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*Transaction
}

func newMockTxRepo() *mockTxRepo {
	return &mockTxRepo{txs: make(map[uuid.UUID]*Transaction)}
}

func (m *mockTxRepo) Create(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	m.txs[t.ID] = &cp
	return nil
}

func (m *mockTxRepo) GetByOrderIDForUpdate(_ context.Context, orderID string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.GatewayOrderID == orderID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (m *mockTxRepo) LatestForUser(_ context.Context, userID uuid.UUID) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Transaction
	for _, t := range m.txs {
		if t.UserID == userID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
		}
	}
	if latest == nil {
		return nil, ErrTransactionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockTxRepo) MarkPaid(_ context.Context, id uuid.UUID, paymentID string, signature *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	t.Status = StatusPaid
	t.GatewayPaymentID = &paymentID
	if signature != nil {
		t.Signature = signature
	}
	return nil
}

func (m *mockTxRepo) MarkFailed(_ context.Context, id uuid.UUID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.txs[id]; ok && t.Status != StatusPaid {
		t.Status = StatusFailed
		t.GatewayPaymentID = &paymentID
	}
	return nil
}

func (m *mockTxRepo) byOrder(orderID string) *Transaction {
	t, _ := m.GetByOrderIDForUpdate(context.Background(), orderID)
	return t
}

type mockUsers struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*identity.User
	statusErr error
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: make(map[uuid.UUID]*identity.User)}
}

func (m *mockUsers) add(details string, status identity.PaymentStatus) *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &identity.User{
		ID:                 uuid.New(),
		Name:               "Asha Rao",
		Email:              "asha@example.com",
		Phone:              "+919876543210",
		AppointmentDetails: json.RawMessage(details),
		PaymentStatus:      status,
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUsers) SetPaymentStatus(_ context.Context, id uuid.UUID, status identity.PaymentStatus, paymentID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	u, ok := m.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.PaymentStatus = status
	if paymentID != nil {
		u.PaymentID = paymentID
	}
	return nil
}

func (m *mockUsers) status(id uuid.UUID) identity.PaymentStatus {
	u, _ := m.GetByID(context.Background(), id)
	return u.PaymentStatus
}

// snapshotRunner emulates a database transaction over the mocks: state is
// restored when fn fails.
type snapshotRunner struct {
	txs   *mockTxRepo
	users *mockUsers
}

func (r snapshotRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txs.mu.Lock()
	txSnap := make(map[uuid.UUID]Transaction, len(r.txs.txs))
	for k, v := range r.txs.txs {
		txSnap[k] = *v
	}
	r.txs.mu.Unlock()
	r.users.mu.Lock()
	userSnap := make(map[uuid.UUID]identity.User, len(r.users.users))
	for k, v := range r.users.users {
		userSnap[k] = *v
	}
	r.users.mu.Unlock()

	err := fn(ctx)
	if err == nil {
		return nil
	}

	r.txs.mu.Lock()
	r.txs.txs = make(map[uuid.UUID]*Transaction, len(txSnap))
	for k, v := range txSnap {
		v := v
		r.txs.txs[k] = &v
	}
	r.txs.mu.Unlock()
	r.users.mu.Lock()
	r.users.users = make(map[uuid.UUID]*identity.User, len(userSnap))
	for k, v := range userSnap {
		v := v
		r.users.users[k] = &v
	}
	r.users.mu.Unlock()
	return err
}

type fixture struct {
	svc   *Service
	txs   *mockTxRepo
	users *mockUsers
	gw    *gateway.Fake
	email *notification.MockEmailSender
}

func newFixture() *fixture {
	f := &fixture{
		txs:   newMockTxRepo(),
		users: newMockUsers(),
		gw:    gateway.NewFake("key_secret"),
		email: &notification.MockEmailSender{},
	}
	f.svc = NewService(f.txs, f.users, f.gw, gateway.DefaultFeeSchedule(),
		snapshotRunner{txs: f.txs, users: f.users}, f.email, "INR", zerolog.Nop())
	return f
}

const visaDetails = `{"appointment_type":"visa_medical"}`

// paidOrder runs create-order and returns a valid verify request for it.
func (f *fixture) paidOrder(t *testing.T, u *identity.User) VerifyRequest {
	t.Helper()
	res, err := f.svc.CreateOrder(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return VerifyRequest{
		OrderID:   res.Order.ID,
		PaymentID: "pay_" + res.Order.ID,
		Signature: f.gw.SignCheckout(res.Order.ID, "pay_"+res.Order.ID),
	}
}

// -- Create order --

func TestService_CreateOrder(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentFailed)

	res, err := f.svc.CreateOrder(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Amount != 350000 || res.Order.Currency != "INR" {
		t.Errorf("unexpected order: %+v", res.Order)
	}
	if res.KeyID != "rzp_test_fake" {
		t.Errorf("expected gateway key id, got %q", res.KeyID)
	}
	if res.User.PaymentStatus != identity.PaymentPending || f.users.status(u.ID) != identity.PaymentPending {
		t.Error("expected user to be pending after order creation")
	}
	tx := f.txs.byOrder(res.Order.ID)
	if tx == nil || tx.Status != StatusCreated || tx.Amount != 350000 || len(tx.Receipt) > 40 {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestService_CreateOrder_Guards(t *testing.T) {
	f := newFixture()
	empty := f.users.add(`{}`, identity.PaymentPending)
	paid := f.users.add(visaDetails, identity.PaymentCompleted)

	if _, err := f.svc.CreateOrder(context.Background(), empty.ID); !errors.Is(err, ErrDetailsIncomplete) {
		t.Errorf("expected ErrDetailsIncomplete, got %v", err)
	}
	if _, err := f.svc.CreateOrder(context.Background(), paid.ID); !errors.Is(err, ErrAlreadyPaid) {
		t.Errorf("expected ErrAlreadyPaid, got %v", err)
	}
	if f.gw.OrderCount() != 0 {
		t.Errorf("guards must run before the gateway is called, got %d orders", f.gw.OrderCount())
	}
}

func TestService_CreateOrder_GatewayFailure(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	f.gw.Err = errors.New("503 from upstream")

	if _, err := f.svc.CreateOrder(context.Background(), u.ID); !errors.Is(err, gateway.ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if len(f.txs.txs) != 0 {
		t.Error("no transaction should be stored when the gateway fails")
	}
}

func TestService_CreateOrder_DefaultFeeForUnknownType(t *testing.T) {
	f := newFixture()
	u := f.users.add(`{"appointment_type":"something_new"}`, identity.PaymentPending)

	res, err := f.svc.CreateOrder(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Amount != gateway.DefaultFeeSchedule().Default {
		t.Errorf("expected default fee, got %d", res.Order.Amount)
	}
}

// -- Verify --

func TestService_Verify(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)

	res, err := f.svc.Verify(context.Background(), u.ID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AlreadyVerified {
		t.Error("first verification must not be reported as repeated")
	}
	if res.Transaction.Status != StatusPaid || *res.Transaction.GatewayPaymentID != req.PaymentID {
		t.Errorf("unexpected transaction: %+v", res.Transaction)
	}
	if res.User.PaymentStatus != identity.PaymentCompleted {
		t.Errorf("expected completed user, got %s", res.User.PaymentStatus)
	}
	stored, _ := f.users.GetByID(context.Background(), u.ID)
	if stored.PaymentID == nil || *stored.PaymentID != req.PaymentID {
		t.Error("expected payment id on user")
	}

	calls := f.email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(calls))
	}
	if len(calls[0].Attachments) != 1 || !bytes.HasPrefix(calls[0].Attachments[0].Data, []byte("%PDF")) {
		t.Error("expected a PDF receipt attachment")
	}
}

func TestService_Verify_BadSignatureChangesNothing(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)

	mutated := req
	mutated.Signature = req.Signature[:len(req.Signature)-1] + "x"
	for _, bad := range []VerifyRequest{
		mutated,
		{OrderID: req.OrderID, PaymentID: "pay_other", Signature: req.Signature},
	} {
		if _, err := f.svc.Verify(context.Background(), u.ID, bad); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	}

	if f.txs.byOrder(req.OrderID).Status != StatusCreated {
		t.Error("transaction must stay created")
	}
	if f.users.status(u.ID) != identity.PaymentPending {
		t.Error("user must stay pending")
	}
	if len(f.email.Calls()) != 0 {
		t.Error("no email may be sent")
	}
}

func TestService_Verify_IsIdempotent(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)

	if _, err := f.svc.Verify(context.Background(), u.ID, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := f.svc.Verify(context.Background(), u.ID, req)
	if err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	if !res.AlreadyVerified {
		t.Error("expected repeat to be reported as already verified")
	}
	if len(f.email.Calls()) != 1 {
		t.Errorf("expected exactly one email, got %d", len(f.email.Calls()))
	}

	// A different payment against the same paid order is a conflict.
	other := VerifyRequest{OrderID: req.OrderID, PaymentID: "pay_other", Signature: f.gw.SignCheckout(req.OrderID, "pay_other")}
	if _, err := f.svc.Verify(context.Background(), u.ID, other); !errors.Is(err, ErrPaymentIDMismatch) {
		t.Errorf("expected ErrPaymentIDMismatch, got %v", err)
	}
}

func TestService_Verify_OtherUsersOrder(t *testing.T) {
	f := newFixture()
	owner := f.users.add(visaDetails, identity.PaymentPending)
	intruder := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, owner)

	if _, err := f.svc.Verify(context.Background(), intruder.ID, req); !errors.Is(err, ErrNotTransactionOwner) {
		t.Fatalf("expected ErrNotTransactionOwner, got %v", err)
	}
	if f.txs.byOrder(req.OrderID).Status != StatusCreated {
		t.Error("transaction must not change")
	}
}

func TestService_Verify_UnknownOrder(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := VerifyRequest{OrderID: "order_missing", PaymentID: "pay_1", Signature: f.gw.SignCheckout("order_missing", "pay_1")}

	if _, err := f.svc.Verify(context.Background(), u.ID, req); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestService_Verify_RollsBackWhenUserUpdateFails(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)
	f.users.statusErr = errors.New("deadlock detected")

	if _, err := f.svc.Verify(context.Background(), u.ID, req); err == nil {
		t.Fatal("expected error")
	}
	if f.txs.byOrder(req.OrderID).Status != StatusCreated {
		t.Error("transaction update must be rolled back with the user update")
	}
	if len(f.email.Calls()) != 0 {
		t.Error("no email after a failed verification")
	}
}

func TestService_Verify_EmailFailureDoesNotFailPayment(t *testing.T) {
	f := newFixture()
	f.email.ShouldFail = true
	f.email.FailError = "smtp: 421 service not available"
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)

	res, err := f.svc.Verify(context.Background(), u.ID, req)
	if err != nil {
		t.Fatalf("email failure must not surface, got %v", err)
	}
	if res.User.PaymentStatus != identity.PaymentCompleted {
		t.Error("payment must still be completed")
	}
}

// -- Webhook --

func (f *fixture) webhook(t *testing.T, event, orderID, paymentID string) ([]byte, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{"id": paymentID, "order_id": orderID, "status": "captured", "amount": 350000},
			},
		},
	})
	return body, gateway.Sign(body, f.gw.WebhookSecret)
}

func TestService_Webhook_Captured(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)
	body, sig := f.webhook(t, "payment.captured", req.OrderID, "pay_wh")

	for i := 0; i < 2; i++ {
		if err := f.svc.HandleWebhook(context.Background(), body, sig); err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i+1, err)
		}
	}
	if f.txs.byOrder(req.OrderID).Status != StatusPaid || f.users.status(u.ID) != identity.PaymentCompleted {
		t.Error("expected paid transaction and completed user")
	}
	if len(f.email.Calls()) != 1 {
		t.Errorf("duplicate webhook must not resend email, got %d", len(f.email.Calls()))
	}

	// A later client-side verify for the same payment id is a no-op.
	verify := VerifyRequest{OrderID: req.OrderID, PaymentID: "pay_wh", Signature: f.gw.SignCheckout(req.OrderID, "pay_wh")}
	res, err := f.svc.Verify(context.Background(), u.ID, verify)
	if err != nil || !res.AlreadyVerified {
		t.Errorf("expected already verified, got %+v %v", res, err)
	}
}

func TestService_Webhook_FailedNeverOverridesPaid(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)
	f.svc.Verify(context.Background(), u.ID, req)

	body, sig := f.webhook(t, "payment.failed", req.OrderID, "pay_late")
	if err := f.svc.HandleWebhook(context.Background(), body, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.txs.byOrder(req.OrderID).Status != StatusPaid || f.users.status(u.ID) != identity.PaymentCompleted {
		t.Error("late failure must not override a completed payment")
	}
}

func TestService_Webhook_Failed(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)
	req := f.paidOrder(t, u)

	body, sig := f.webhook(t, "payment.failed", req.OrderID, "pay_declined")
	if err := f.svc.HandleWebhook(context.Background(), body, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.txs.byOrder(req.OrderID).Status != StatusFailed || f.users.status(u.ID) != identity.PaymentFailed {
		t.Error("expected failed transaction and user")
	}

	// The user can retry with a new order.
	if _, err := f.svc.CreateOrder(context.Background(), u.ID); err != nil {
		t.Errorf("expected retry to be allowed, got %v", err)
	}
}

func TestService_Webhook_Rejections(t *testing.T) {
	f := newFixture()
	body, sig := f.webhook(t, "payment.captured", "order_x", "pay_x")

	if err := f.svc.HandleWebhook(context.Background(), body, "deadbeef"); !errors.Is(err, ErrInvalidWebhook) {
		t.Errorf("expected ErrInvalidWebhook, got %v", err)
	}
	if err := f.svc.HandleWebhook(context.Background(), body, sig); err != nil {
		t.Errorf("unknown orders are acknowledged, got %v", err)
	}

	other := []byte(`{"event":"refund.created","payload":{}}`)
	if err := f.svc.HandleWebhook(context.Background(), other, gateway.Sign(other, f.gw.WebhookSecret)); err != nil {
		t.Errorf("unhandled events are acknowledged, got %v", err)
	}

	junk := []byte(`not json`)
	if err := f.svc.HandleWebhook(context.Background(), junk, gateway.Sign(junk, f.gw.WebhookSecret)); !errors.Is(err, ErrMalformedWebhookBody) {
		t.Errorf("expected ErrMalformedWebhookBody, got %v", err)
	}
}

// -- Status --

func TestService_Status(t *testing.T) {
	f := newFixture()
	u := f.users.add(visaDetails, identity.PaymentPending)

	res, err := f.svc.Status(context.Background(), u.ID)
	if err != nil || res.Transaction != nil {
		t.Fatalf("expected no transaction yet, got %+v %v", res, err)
	}

	req := f.paidOrder(t, u)
	f.svc.Verify(context.Background(), u.ID, req)
	f.gw.Payments[req.PaymentID] = &gateway.Payment{ID: req.PaymentID, OrderID: req.OrderID, Status: "captured"}

	res, err = f.svc.Status(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PaymentStatus != identity.PaymentCompleted || res.Gateway == nil || res.Gateway.Status != "captured" {
		t.Errorf("unexpected status: %+v", res)
	}

	f.gw.Err = errors.New("timeout")
	res, err = f.svc.Status(context.Background(), u.ID)
	if err != nil || res.Gateway != nil {
		t.Errorf("gateway lookup failure must degrade, got %+v %v", res, err)
	}
}

func TestRenderReceipt(t *testing.T) {
	pdf, err := RenderReceipt(ReceiptData{
		Receipt: "rcpt_1", Name: "Asha Rão", Amount: 150050, Currency: "INR",
		AppointmentType: "general_checkup", PaidAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Error("expected PDF output")
	}
	if got := FormatAmount(150050, "INR"); got != "INR 1500.50" {
		t.Errorf("expected INR 1500.50, got %s", got)
	}
}
