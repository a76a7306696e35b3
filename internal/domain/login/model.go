// Package login authenticates users by phone OTP and admins by password,
// and mints the tokens the rest of the API accepts.
package login

import (
	"errors"

	"github.com/google/uuid"

	"github.com/medbook/booking/internal/domain/identity"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number format")
	ErrRateLimited  = errors.New("too many OTP requests")
	ErrInvalidOTP   = errors.New("invalid or expired OTP")
	ErrSMSFailed    = errors.New("failed to send OTP")
)

// SendResult is the data of a send-otp response. OTP is only populated
// when code echo is enabled.
type SendResult struct {
	Phone     string `json:"phone"`
	MessageID string `json:"messageId"`
	ExpiresIn int    `json:"expiresIn"`
	OTP       string `json:"otp,omitempty"`
}

type UserSession struct {
	Token string           `json:"token"`
	User  identity.Summary `json:"user"`
	// Created is set when this verification created the user.
	Created bool `json:"-"`
}

type AdminSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type AdminSession struct {
	Token string       `json:"token"`
	Admin AdminSummary `json:"admin"`
}

type SendOTPRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}
