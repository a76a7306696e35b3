package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/pkg/phone"
)

// LogSMSSender writes messages to the log instead of sending them. Used when
// SMS_DRY_RUN is set or no Twilio credentials are configured outside
// production. Message bodies are not logged since they contain the code.
type LogSMSSender struct {
	logger zerolog.Logger
}

func NewLogSMSSender(logger zerolog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger.With().Str("component", "sms-dry-run").Logger()}
}

func (s *LogSMSSender) SendSMS(_ context.Context, to, body string) (string, error) {
	id := "dry-run-" + uuid.NewString()
	s.logger.Info().
		Str("to", phone.Mask(to)).
		Int("length", len(body)).
		Str("message_id", id).
		Msg("sms not sent (dry run)")
	return id, nil
}

// LogEmailSender logs outbound email instead of sending it.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email-dry-run").Logger()}
}

func (s *LogEmailSender) SendEmail(_ context.Context, msg Email) error {
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("email not sent (dry run)")
	return nil
}
