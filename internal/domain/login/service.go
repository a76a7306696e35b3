package login

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/admin"
	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/notification"
	"github.com/medbook/booking/internal/platform/ratelimit"
	"github.com/medbook/booking/pkg/phone"
)

const defaultSMSTimeout = 10 * time.Second

// CodeIssuer is satisfied by *otp.Service.
type CodeIssuer interface {
	Issue(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone, code string) (bool, error)
	TTL() time.Duration
}

// UserDirectory is satisfied by *identity.Service.
type UserDirectory interface {
	FindOrCreateByPhone(ctx context.Context, phone string) (*identity.User, bool, error)
	GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// AdminAuthenticator is satisfied by *admin.Service.
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, username, password, ip string) (*admin.Admin, error)
}

type Options struct {
	// EchoOTP returns issued codes in send-otp responses. Config validation
	// refuses it in production.
	EchoOTP bool
	// StrictSMS turns SMS dispatch failures into request failures.
	StrictSMS bool
}

type Service struct {
	codes     CodeIssuer
	limiter   ratelimit.Limiter
	users     UserDirectory
	admins    AdminAuthenticator
	sms       notification.SMSSender
	codec     *auth.TokenCodec
	templates *notification.TemplateEngine
	opts      Options
	logger    zerolog.Logger

	smsTimeout time.Duration
}

func NewService(codes CodeIssuer, limiter ratelimit.Limiter, users UserDirectory, admins AdminAuthenticator,
	sms notification.SMSSender, codec *auth.TokenCodec, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		codes:      codes,
		limiter:    limiter,
		users:      users,
		admins:     admins,
		sms:        sms,
		codec:      codec,
		templates:  notification.NewTemplateEngine(),
		opts:       opts,
		logger:     logger.With().Str("component", "login").Logger(),
		smsTimeout: defaultSMSTimeout,
	}
}

// TokenTTL is the lifetime of issued tokens.
func (s *Service) TokenTTL() time.Duration { return s.codec.TTL() }

func normalize(raw string) (string, error) {
	p := phone.Format(raw)
	if !phone.Valid(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}

// SendOTP issues a fresh code for the phone and texts it. The rate limit is
// checked before anything is stored.
func (s *Service) SendOTP(ctx context.Context, rawPhone string) (*SendResult, error) {
	p, err := normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("phone", phone.Mask(p)).Logger()

	allowed, err := s.limiter.Allow(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	if !allowed {
		log.Warn().Msg("otp rate limit exceeded")
		return nil, ErrRateLimited
	}

	code, err := s.codes.Issue(ctx, p)
	if err != nil {
		return nil, err
	}

	ttl := s.codes.TTL()
	_, body, err := s.templates.Render(notification.TemplateOTP, map[string]string{
		"code":    code,
		"minutes": strconv.Itoa(int(ttl.Minutes())),
	})
	if err != nil {
		return nil, fmt.Errorf("render otp sms: %w", err)
	}

	smsCtx, cancel := context.WithTimeout(ctx, s.smsTimeout)
	defer cancel()
	messageID, err := s.sms.SendSMS(smsCtx, p, body)
	if err != nil {
		log.Error().Err(err).Msg("otp sms not delivered")
		if s.opts.StrictSMS {
			return nil, fmt.Errorf("%w: %v", ErrSMSFailed, err)
		}
	} else {
		log.Info().Str("message_id", messageID).Msg("otp sent")
	}

	res := &SendResult{
		Phone:     p,
		MessageID: messageID,
		ExpiresIn: int(ttl.Seconds()),
	}
	if s.opts.EchoOTP {
		res.OTP = code
	}
	return res, nil
}

// VerifyOTP consumes the code and returns a user token, creating the user on
// first sign-in.
func (s *Service) VerifyOTP(ctx context.Context, rawPhone, code string) (*UserSession, error) {
	p, err := normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	ok, err := s.codes.Verify(ctx, p, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info().Str("phone", phone.Mask(p)).Msg("otp rejected")
		return nil, ErrInvalidOTP
	}

	u, created, err := s.users.FindOrCreateByPhone(ctx, p)
	if err != nil {
		return nil, err
	}
	token, err := s.codec.Issue(auth.Claims{ID: u.ID.String(), Phone: u.Phone, Type: auth.TypeUser})
	if err != nil {
		return nil, fmt.Errorf("issue user token: %w", err)
	}

	s.logger.Info().Str("user_id", u.ID.String()).Bool("created", created).Msg("user signed in")
	return &UserSession{Token: token, User: u.Summary(), Created: created}, nil
}

func (s *Service) AdminLogin(ctx context.Context, username, password, ip string) (*AdminSession, error) {
	a, err := s.admins.Authenticate(ctx, username, password, ip)
	if err != nil {
		if errors.Is(err, admin.ErrInvalidCredentials) {
			s.logger.Warn().Str("ip", ip).Msg("admin login rejected")
		}
		return nil, err
	}
	token, err := s.codec.Issue(auth.Claims{ID: a.ID.String(), Username: a.Username, Type: auth.TypeAdmin})
	if err != nil {
		return nil, fmt.Errorf("issue admin token: %w", err)
	}
	return &AdminSession{Token: token, Admin: AdminSummary{ID: a.ID, Username: a.Username}}, nil
}

// CurrentUser resolves the signed-in user for /auth/me.
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return s.users.GetUser(ctx, id)
}
