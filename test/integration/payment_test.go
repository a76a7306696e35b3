//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/domain/payment"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/gateway"
	"github.com/medbook/booking/internal/platform/notification"
)

func newPaymentService() (*payment.Service, *gateway.Fake, *notification.MockEmailSender) {
	gw := gateway.NewFake("integration-secret")
	email := &notification.MockEmailSender{}
	svc := payment.NewService(payment.NewRepo(pool), identity.NewUserRepo(pool), gw,
		gateway.DefaultFeeSchedule(), db.NewTxRunner(pool), email, "INR", zerolog.Nop())
	return svc, gw, email
}

func bookedUser(t *testing.T) *identity.User {
	t.Helper()
	ctx := context.Background()
	repo := identity.NewUserRepo(pool)
	u, _, err := repo.FindOrCreateByPhone(ctx, randomPhone())
	if err != nil {
		t.Fatal(err)
	}
	u, err = repo.UpdateAppointment(ctx, u.ID, "Asha Rao", "asha@example.com", "M1234567",
		json.RawMessage(`{"appointment_type":"specialist_consultation"}`))
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestPayment_ConcurrentVerifyCompletesOnce(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	svc, gw, email := newPaymentService()
	u := bookedUser(t)

	order, err := svc.CreateOrder(ctx, u.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Order.Amount != 250000 {
		t.Errorf("expected specialist fee, got %d", order.Order.Amount)
	}

	req := payment.VerifyRequest{
		OrderID:   order.Order.ID,
		PaymentID: "pay_concurrent",
		Signature: gw.SignCheckout(order.Order.ID, "pay_concurrent"),
	}

	var mu sync.Mutex
	fresh := 0
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Verify(ctx, u.ID, req)
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if !res.AlreadyVerified {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("expected exactly one first verification, got %d", fresh)
	}
	if n := len(email.Calls()); n != 1 {
		t.Errorf("expected one confirmation email, got %d", n)
	}

	stored, _ := identity.NewUserRepo(pool).GetByID(ctx, u.ID)
	if stored.PaymentStatus != identity.PaymentCompleted || stored.PaymentID == nil || *stored.PaymentID != "pay_concurrent" {
		t.Errorf("unexpected user after payment: %+v", stored)
	}

	status, err := svc.Status(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.Transaction == nil || status.Transaction.Status != payment.StatusPaid {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestPayment_WebhookThenVerify(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	svc, gw, email := newPaymentService()
	u := bookedUser(t)

	order, err := svc.CreateOrder(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}

	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_hook","order_id":"` +
		order.Order.ID + `","status":"captured","amount":250000}}}}`)
	if err := svc.HandleWebhook(ctx, body, gateway.Sign(body, gw.WebhookSecret)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	res, err := svc.Verify(ctx, u.ID, payment.VerifyRequest{
		OrderID:   order.Order.ID,
		PaymentID: "pay_hook",
		Signature: gw.SignCheckout(order.Order.ID, "pay_hook"),
	})
	if err != nil || !res.AlreadyVerified {
		t.Fatalf("expected already verified, got %+v %v", res, err)
	}
	if len(email.Calls()) != 1 {
		t.Errorf("expected one email, got %d", len(email.Calls()))
	}
}

func TestPayment_FailedRowNeverDowngradesPaid(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	svc, gw, _ := newPaymentService()
	u := bookedUser(t)
	order, _ := svc.CreateOrder(ctx, u.ID)

	svc.Verify(ctx, u.ID, payment.VerifyRequest{
		OrderID:   order.Order.ID,
		PaymentID: "pay_ok",
		Signature: gw.SignCheckout(order.Order.ID, "pay_ok"),
	})

	repo := payment.NewRepo(pool)
	tx, err := repo.GetByOrderIDForUpdate(ctx, order.Order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkFailed(ctx, tx.ID, "pay_late"); err != nil {
		t.Fatal(err)
	}
	after, _ := repo.GetByOrderIDForUpdate(ctx, order.Order.ID)
	if after.Status != payment.StatusPaid || *after.GatewayPaymentID != "pay_ok" {
		t.Errorf("paid row was modified: %+v", after)
	}
}
