// Package notification delivers OTP text messages and payment emails.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Attachment is a file sent alongside an email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Email is one outbound message. HTML is optional; Text is always sent.
type Email struct {
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) error
}

// SMSSender delivers a text message and returns the provider's message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

const (
	TemplateOTP                 = "otp-sms"
	TemplatePaymentConfirmation = "payment-confirmation"
	TemplateSlipReady           = "slip-ready"
)

// TemplateEngine holds message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   TemplateOTP,
			Body: "{{code}} is your MedBook verification code. It expires in {{minutes}} minutes. Do not share it with anyone.",
		},
		{
			ID:      TemplatePaymentConfirmation,
			Subject: "Payment received for your {{appointment_type}} appointment",
			Body: "Dear {{name}},\n\n" +
				"We have received your payment of {{amount}} (payment id {{payment_id}}).\n" +
				"Your appointment request is confirmed. We will share your appointment slip once it is scheduled.\n\n" +
				"A receipt is attached to this email.\n\nMedBook",
		},
		{
			ID:      TemplateSlipReady,
			Subject: "Your appointment slip is ready",
			Body:    "Dear {{name}},\n\nYour appointment slip has been uploaded. Sign in to download it.\n\nMedBook",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render performs {{key}} replacement. Placeholders missing from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: msg.To, Subject: msg.Subject, Text: msg.Text, Attachments: msg.Attachments})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return fmt.Sprintf("SM%032d", len(m.calls)), nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}
