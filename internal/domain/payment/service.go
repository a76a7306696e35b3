package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/gateway"
	"github.com/medbook/booking/internal/platform/notification"
	"github.com/medbook/booking/pkg/phone"
)

const defaultEmailTimeout = 10 * time.Second

type Service struct {
	txs       Repository
	users     UserStore
	gw        gateway.Gateway
	fees      *gateway.FeeSchedule
	runner    db.TxRunner
	email     notification.EmailSender
	templates *notification.TemplateEngine
	currency  string
	logger    zerolog.Logger

	emailTimeout time.Duration
	now          func() time.Time
}

func NewService(txs Repository, users UserStore, gw gateway.Gateway, fees *gateway.FeeSchedule, runner db.TxRunner, email notification.EmailSender, currency string, logger zerolog.Logger) *Service {
	if fees == nil {
		fees = gateway.DefaultFeeSchedule()
	}
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		txs:          txs,
		users:        users,
		gw:           gw,
		fees:         fees,
		runner:       runner,
		email:        email,
		templates:    notification.NewTemplateEngine(),
		currency:     currency,
		logger:       logger.With().Str("component", "payment").Logger(),
		emailTimeout: defaultEmailTimeout,
		now:          time.Now,
	}
}

// CreateOrder reserves the appointment fee with the gateway and records a
// created transaction for the user.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID) (*OrderResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasAppointmentDetails() {
		return nil, ErrDetailsIncomplete
	}
	if u.PaymentStatus == identity.PaymentCompleted {
		return nil, ErrAlreadyPaid
	}

	apptType := u.AppointmentType()
	amount := s.fees.AmountForAppointmentType(apptType)
	receipt := newReceiptNumber()

	order, err := s.gw.CreateOrder(ctx, amount, s.currency, receipt, map[string]string{
		"user_id":          u.ID.String(),
		"appointment_type": apptType,
	})
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		UserID:         u.ID,
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       s.currency,
		Status:         StatusCreated,
		Receipt:        receipt,
	}
	err = s.runner.InTx(ctx, func(ctx context.Context) error {
		if err := s.txs.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return s.users.SetPaymentStatus(ctx, u.ID, identity.PaymentPending, nil)
	})
	if err != nil {
		return nil, err
	}
	u.PaymentStatus = identity.PaymentPending

	s.logger.Info().
		Str("user_id", u.ID.String()).
		Str("order_id", order.ID).
		Int64("amount", amount).
		Msg("payment order created")

	return &OrderResult{
		Order:       order,
		User:        u.Summary(),
		Appointment: u.Appointment(),
		KeyID:       s.gw.KeyID(),
	}, nil
}

// Verify checks the checkout signature and, in one database transaction,
// marks the transaction paid and the user completed. Repeating a successful
// verification is a no-op that reports AlreadyVerified.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, req VerifyRequest) (*VerifyResult, error) {
	if !s.gw.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn().
			Str("user_id", userID.String()).
			Str("order_id", req.OrderID).
			Msg("payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	var t *Transaction
	already := false
	err := s.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.txs.GetByOrderIDForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if t.UserID != userID {
			return ErrNotTransactionOwner
		}
		if t.Status == StatusPaid {
			if t.GatewayPaymentID != nil && *t.GatewayPaymentID == req.PaymentID {
				already = true
				return nil
			}
			return ErrPaymentIDMismatch
		}

		sig := req.Signature
		if err := s.txs.MarkPaid(ctx, t.ID, req.PaymentID, &sig); err != nil {
			return fmt.Errorf("mark transaction paid: %w", err)
		}
		pid := req.PaymentID
		if err := s.users.SetPaymentStatus(ctx, userID, identity.PaymentCompleted, &pid); err != nil {
			return fmt.Errorf("mark user completed: %w", err)
		}
		t.Status = StatusPaid
		t.GatewayPaymentID = &pid
		t.Signature = &sig
		return nil
	})
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !already {
		s.logger.Info().
			Str("user_id", userID.String()).
			Str("order_id", t.GatewayOrderID).
			Str("payment_id", req.PaymentID).
			Msg("payment verified")
		s.sendConfirmation(ctx, u, t)
	}

	return &VerifyResult{
		PaymentID:       req.PaymentID,
		Status:          u.PaymentStatus,
		Transaction:     t,
		User:            u.Summary(),
		AlreadyVerified: already,
	}, nil
}

// Status reports the user's payment state, the latest transaction and, when
// a payment id is known, the gateway's live view of it.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*StatusResult, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{PaymentStatus: u.PaymentStatus}

	t, err := s.txs.LatestForUser(ctx, userID)
	if errors.Is(err, ErrTransactionNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest transaction: %w", err)
	}
	res.Transaction = t

	if t.GatewayPaymentID != nil {
		p, err := s.gw.FetchPayment(ctx, *t.GatewayPaymentID)
		if err != nil {
			s.logger.Warn().Err(err).Str("payment_id", *t.GatewayPaymentID).Msg("gateway status lookup failed")
		} else {
			res.Gateway = p
		}
	}
	return res, nil
}

// HandleWebhook applies a signed gateway event. Captured payments are marked
// paid once; duplicates and events for unknown orders are acknowledged and
// ignored. Failed payments never override a completed one.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gw.VerifyWebhookSignature(body, signature) {
		return ErrInvalidWebhook
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ErrMalformedWebhookBody
	}
	entity := ev.Payload.Payment.Entity
	log := s.logger.With().Str("event", ev.Event).Str("order_id", entity.OrderID).Str("payment_id", entity.ID).Logger()

	switch ev.Event {
	case "payment.captured", "payment.failed":
	default:
		log.Debug().Msg("webhook event ignored")
		return nil
	}
	if entity.OrderID == "" || entity.ID == "" {
		return ErrMalformedWebhookBody
	}

	var t *Transaction
	transitioned := false
	err := s.runner.InTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.txs.GetByOrderIDForUpdate(ctx, entity.OrderID)
		if err != nil {
			return err
		}
		if t.Status == StatusPaid {
			return nil
		}

		if ev.Event == "payment.captured" {
			if err := s.txs.MarkPaid(ctx, t.ID, entity.ID, nil); err != nil {
				return fmt.Errorf("mark transaction paid: %w", err)
			}
			pid := entity.ID
			if err := s.users.SetPaymentStatus(ctx, t.UserID, identity.PaymentCompleted, &pid); err != nil {
				return fmt.Errorf("mark user completed: %w", err)
			}
			t.Status = StatusPaid
			t.GatewayPaymentID = &pid
			transitioned = true
			return nil
		}

		if err := s.txs.MarkFailed(ctx, t.ID, entity.ID); err != nil {
			return fmt.Errorf("mark transaction failed: %w", err)
		}
		u, err := s.users.GetByID(ctx, t.UserID)
		if err != nil {
			return err
		}
		if u.PaymentStatus != identity.PaymentCompleted {
			if err := s.users.SetPaymentStatus(ctx, t.UserID, identity.PaymentFailed, nil); err != nil {
				return fmt.Errorf("mark user failed: %w", err)
			}
		}
		t.Status = StatusFailed
		return nil
	})
	if errors.Is(err, ErrTransactionNotFound) {
		log.Warn().Msg("webhook for unknown order")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().Str("status", string(t.Status)).Bool("changed", transitioned || t.Status == StatusFailed).Msg("webhook applied")
	if transitioned {
		if u, err := s.users.GetByID(ctx, t.UserID); err == nil {
			s.sendConfirmation(ctx, u, t)
		}
	}
	return nil
}

// sendConfirmation emails the receipt. Failures are logged only; a payment
// is never rolled back or reported as failed because of email.
func (s *Service) sendConfirmation(ctx context.Context, u *identity.User, t *Transaction) {
	if s.email == nil || u.Email == "" {
		return
	}
	log := s.logger.With().Str("user_id", u.ID.String()).Str("order_id", t.GatewayOrderID).Logger()

	paymentID := ""
	if t.GatewayPaymentID != nil {
		paymentID = *t.GatewayPaymentID
	}
	name := u.Name
	if name == "" {
		name = "Patient"
	}
	apptType := u.AppointmentType()
	subject, body, err := s.templates.Render(notification.TemplatePaymentConfirmation, map[string]string{
		"name":             name,
		"amount":           FormatAmount(t.Amount, t.Currency),
		"payment_id":       paymentID,
		"appointment_type": strings.ReplaceAll(apptType, "_", " "),
	})
	if err != nil {
		log.Error().Err(err).Msg("render confirmation email")
		return
	}

	msg := notification.Email{To: u.Email, Subject: subject, Text: body}
	pdf, err := RenderReceipt(ReceiptData{
		Receipt:         t.Receipt,
		Name:            name,
		Phone:           u.Phone,
		Email:           u.Email,
		AppointmentType: apptType,
		PaymentID:       paymentID,
		OrderID:         t.GatewayOrderID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		PaidAt:          s.now(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("receipt not attached")
	} else {
		msg.Attachments = []notification.Attachment{{
			Filename:    "receipt-" + t.Receipt + ".pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.emailTimeout)
	defer cancel()
	if err := s.email.SendEmail(sendCtx, msg); err != nil {
		log.Warn().Err(err).Str("phone", phone.Mask(u.Phone)).Msg("confirmation email not delivered")
		return
	}
	log.Info().Msg("confirmation email sent")
}

// newReceiptNumber fits the gateway's 40 character receipt limit.
func newReceiptNumber() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
