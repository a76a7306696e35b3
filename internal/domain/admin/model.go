package admin

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrPaymentIncomplete  = errors.New("payment not completed for this user")
)

// Activity actions.
const (
	ActionLogin        = "login"
	ActionUploadSlip   = "upload_slip"
	ActionViewUsers    = "view_users"
	ActionViewUser     = "view_user"
	ActionDownloadSlip = "download_slip"
	ActionViewActivity = "view_activity"
)

// Admin maps to the admins table.
type Admin struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Activity maps to the admin_activity_log table.
type Activity struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AdminID      uuid.UUID       `db:"admin_id" json:"admin_id"`
	Action       string          `db:"action" json:"action"`
	TargetUserID *uuid.UUID      `db:"target_user_id" json:"target_user_id,omitempty"`
	Details      json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress    string          `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}
