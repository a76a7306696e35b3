package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/medbook/booking/internal/platform/blobstore"
	"github.com/medbook/booking/internal/platform/middleware"
)

// AppointmentRequest is the body of POST /appointments/create.
type AppointmentRequest struct {
	Name               string          `json:"name" validate:"required,max=255"`
	Email              string          `json:"email" validate:"required,email,max=255"`
	PassportNumber     string          `json:"passport_number" validate:"required,alphanum,min=6,max=20"`
	AppointmentDetails json.RawMessage `json:"appointment_details" validate:"required"`
}

type Service struct {
	users     UserRepository
	blobs     blobstore.BlobStore
	knownType func(string) bool
}

// NewService wires the user store. knownType decides which appointment
// types are accepted; nil accepts any non-empty type.
func NewService(users UserRepository, blobs blobstore.BlobStore, knownType func(string) bool) *Service {
	if knownType == nil {
		knownType = func(string) bool { return true }
	}
	return &Service{users: users, blobs: blobs, knownType: knownType}
}

func (s *Service) FindOrCreateByPhone(ctx context.Context, phone string) (*User, bool, error) {
	u, created, err := s.users.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		return nil, false, fmt.Errorf("find or create user: %w", err)
	}
	return u, created, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// SaveAppointment validates and stores the caller's appointment form.
func (s *Service) SaveAppointment(ctx context.Context, id uuid.UUID, req AppointmentRequest) (*User, error) {
	details, err := s.NormalizeDetails(req.AppointmentDetails)
	if err != nil {
		return nil, err
	}

	name := middleware.SanitizeString(strings.TrimSpace(req.Name))
	email := strings.ToLower(strings.TrimSpace(req.Email))
	passport := strings.ToUpper(strings.TrimSpace(req.PassportNumber))

	return s.users.UpdateAppointment(ctx, id, name, email, passport, details)
}

// NormalizeDetails checks that raw is a JSON object with a supported
// appointment_type and returns it with string values sanitised.
func (s *Service) NormalizeDetails(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrDetailsNotObject
	}

	var details map[string]interface{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, ErrDetailsNotObject
	}

	t, _ := details["appointment_type"].(string)
	t = strings.TrimSpace(t)
	if t == "" {
		return nil, ErrMissingAppointmentType
	}
	if !s.knownType(t) {
		return nil, ErrUnknownAppointmentType
	}
	details["appointment_type"] = t

	for k, v := range details {
		if str, ok := v.(string); ok {
			details[k] = middleware.SanitizeString(str)
		}
	}

	out, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode appointment details: %w", err)
	}
	return out, nil
}

// OpenSlip returns the uploaded slip for the user.
func (s *Service) OpenSlip(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !u.HasSlip() {
		return nil, nil, ErrSlipNotAvailable
	}
	rc, meta, err := s.blobs.Open(ctx, *u.AppointmentSlipPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open slip: %w", err)
	}
	return rc, meta, nil
}
