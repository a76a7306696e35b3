package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/blobstore"
	"github.com/medbook/booking/internal/platform/middleware"
	"github.com/medbook/booking/internal/platform/notification"
	"github.com/medbook/booking/pkg/pagination"
	"github.com/medbook/booking/pkg/phone"
)

const MinPasswordLength = 12

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

type Service struct {
	admins    AdminRepository
	activity  ActivityRepository
	users     identity.UserRepository
	blobs     blobstore.BlobStore
	sms       notification.SMSSender
	templates *notification.TemplateEngine
	logger    zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(admins AdminRepository, activity ActivityRepository, users identity.UserRepository, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		admins:    admins,
		activity:  activity,
		users:     users,
		blobs:     blobs,
		templates: notification.NewTemplateEngine(),
		logger:    logger.With().Str("component", "admin").Logger(),
	}
}

// SetNotifier enables the "slip ready" text message after uploads.
func (s *Service) SetNotifier(sms notification.SMSSender) {
	s.sms = sms
}

// -- Accounts --

// Authenticate checks a username and password. Unknown usernames, inactive
// accounts and wrong passwords all return ErrInvalidCredentials, and all of
// them pay for one hash verification.
func (s *Service) Authenticate(ctx context.Context, username, password, ip string) (*Admin, error) {
	a, err := s.admins.GetByUsername(ctx, username)
	if errors.Is(err, ErrAdminNotFound) {
		auth.VerifyPassword(password, s.placeholderHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}

	ok, err := auth.VerifyPassword(password, a.PasswordHash)
	if err != nil {
		s.logger.Error().Err(err).Str("admin_id", a.ID.String()).Msg("stored password hash is unreadable")
		return nil, ErrInvalidCredentials
	}
	if !ok || !a.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := s.admins.TouchLastLogin(ctx, a.ID); err != nil {
		s.logger.Warn().Err(err).Str("admin_id", a.ID.String()).Msg("failed to update last login")
	}
	s.record(ctx, &Activity{AdminID: a.ID, Action: ActionLogin, IPAddress: ip})
	return a, nil
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword(uuid.NewString())
	})
	return s.dummyHash
}

// CreateAdmin provisions an active admin account.
func (s *Service) CreateAdmin(ctx context.Context, username, password string) (*Admin, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("username must be 3-64 characters of letters, digits, '.', '_' or '-'")
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &Admin{Username: username, PasswordHash: hash, IsActive: true}
	if err := s.admins.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// -- Review --

// UserList is one page of users plus counts over the whole table.
type UserList struct {
	*pagination.Response
	Stats *identity.Stats `json:"stats"`
}

func (s *Service) ListUsers(ctx context.Context, filter identity.ListFilter, p pagination.Params) (*UserList, error) {
	users, total, err := s.users.List(ctx, filter, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	stats, err := s.users.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	if users == nil {
		users = []*identity.User{}
	}
	return &UserList{Response: pagination.NewResponse(users, total, p), Stats: stats}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return s.users.GetByID(ctx, id)
}

// UploadSlip stores an appointment slip for a user whose payment completed.
// A previously uploaded slip is replaced.
func (s *Service) UploadSlip(ctx context.Context, adminID, userID uuid.UUID, fileName string, content io.Reader, ip string) (*identity.User, *blobstore.BlobMetadata, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if u.PaymentStatus != identity.PaymentCompleted {
		return nil, nil, ErrPaymentIncomplete
	}

	meta, err := s.blobs.Put(ctx, blobstore.BlobMetadata{
		FileName:  fileName,
		OwnerID:   userID.String(),
		CreatedBy: adminID.String(),
	}, content)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.SetSlipPath(ctx, userID, meta.Key); err != nil {
		if delErr := s.blobs.Delete(ctx, meta.Key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", meta.Key).Msg("failed to remove orphaned slip")
		}
		return nil, nil, fmt.Errorf("save slip path: %w", err)
	}

	if u.HasSlip() && *u.AppointmentSlipPath != meta.Key {
		if err := s.blobs.Delete(ctx, *u.AppointmentSlipPath); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("key", *u.AppointmentSlipPath).Msg("failed to remove replaced slip")
		}
	}
	u.AppointmentSlipPath = &meta.Key

	details, _ := json.Marshal(map[string]interface{}{
		"file_name":    meta.FileName,
		"content_type": meta.ContentType,
		"size":         meta.Size,
		"sha256":       meta.Hash,
	})
	s.record(ctx, &Activity{AdminID: adminID, Action: ActionUploadSlip, TargetUserID: &userID, Details: details, IPAddress: ip})
	s.notifySlipReady(ctx, u)

	return u, meta, nil
}

// OpenSlip returns the slip uploaded for a user.
func (s *Service) OpenSlip(ctx context.Context, userID uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !u.HasSlip() {
		return nil, nil, identity.ErrSlipNotAvailable
	}
	return s.blobs.Open(ctx, *u.AppointmentSlipPath)
}

func (s *Service) notifySlipReady(ctx context.Context, u *identity.User) {
	if s.sms == nil || u.Phone == "" {
		return
	}
	name := u.Name
	if name == "" {
		name = "there"
	}
	_, body, err := s.templates.Render(notification.TemplateSlipReady, map[string]string{"name": name})
	if err != nil {
		s.logger.Error().Err(err).Msg("render slip notification")
		return
	}
	if _, err := s.sms.SendSMS(ctx, u.Phone, body); err != nil {
		s.logger.Warn().Err(err).Str("phone", phone.Mask(u.Phone)).Msg("slip notification not delivered")
	}
}

// -- Activity --

func (s *Service) ListActivity(ctx context.Context, adminID *uuid.UUID, p pagination.Params) (*pagination.Response, error) {
	items, total, err := s.activity.List(ctx, adminID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if items == nil {
		items = []*Activity{}
	}
	return pagination.NewResponse(items, total, p), nil
}

// RecordAccess stores a back-office read reported by the audit middleware.
func (s *Service) RecordAccess(ctx context.Context, entry middleware.AuditEntry) error {
	adminID, err := uuid.Parse(entry.AdminID)
	if err != nil {
		return fmt.Errorf("audit entry admin id: %w", err)
	}
	a := &Activity{AdminID: adminID, Action: entry.Action, IPAddress: entry.IPAddress}
	if target, err := uuid.Parse(entry.TargetUserID); err == nil {
		a.TargetUserID = &target
	}
	a.Details, _ = json.Marshal(map[string]interface{}{
		"method":     entry.Method,
		"path":       entry.Path,
		"status":     entry.StatusCode,
		"request_id": entry.RequestID,
		"user_agent": entry.UserAgent,
	})
	return s.activity.Record(ctx, a)
}

// record writes an activity row; failures are logged and never surface.
func (s *Service) record(ctx context.Context, a *Activity) {
	if err := s.activity.Record(ctx, a); err != nil {
		s.logger.Warn().Err(err).Str("action", a.Action).Str("admin_id", a.AdminID.String()).Msg("failed to record admin activity")
	}
}
