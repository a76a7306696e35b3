package otp

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	CodeLength = 6
	DefaultTTL = 10 * time.Minute
)

var ErrInvalidCode = errors.New("invalid or expired OTP")

// Token maps to the otp_tokens table. There is at most one row per phone.
type Token struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Phone     string     `db:"phone" json:"phone"`
	Code      string     `db:"code" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Used      bool       `db:"used" json:"used"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the token can still be consumed at now.
func (t *Token) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// wellFormed reports whether code is exactly six ASCII digits.
func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
