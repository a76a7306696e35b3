package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus mirrors the payment_status enum on users.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrDetailsNotObject       = errors.New("appointment_details must be a JSON object")
	ErrMissingAppointmentType = errors.New("appointment_details.appointment_type is required")
	ErrUnknownAppointmentType = errors.New("appointment_details.appointment_type is not supported")
	ErrAppointmentLocked      = errors.New("appointment details cannot be changed after payment")
	ErrSlipNotAvailable       = errors.New("appointment slip is not available yet")
)

// User maps to the users table.
type User struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	Name                string          `db:"name" json:"name"`
	Email               string          `db:"email" json:"email"`
	Phone               string          `db:"phone" json:"phone"`
	PassportNumber      string          `db:"passport_number" json:"passport_number"`
	AppointmentDetails  json.RawMessage `db:"appointment_details" json:"appointment_details"`
	PaymentStatus       PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentID           *string         `db:"payment_id" json:"payment_id,omitempty"`
	AppointmentSlipPath *string         `db:"appointment_slip_path" json:"-"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// HasAppointmentDetails reports whether the stored details object has at
// least one key.
func (u *User) HasAppointmentDetails() bool {
	d := bytes.TrimSpace(u.AppointmentDetails)
	if len(d) == 0 || bytes.Equal(d, []byte("null")) {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(d, &m); err != nil {
		return false
	}
	return len(m) > 0
}

// HasSlip reports whether an appointment slip has been uploaded.
func (u *User) HasSlip() bool {
	return u.AppointmentSlipPath != nil && *u.AppointmentSlipPath != ""
}

// AppointmentType returns appointment_details.appointment_type, or "".
func (u *User) AppointmentType() string {
	var d struct {
		AppointmentType string `json:"appointment_type"`
	}
	if err := json.Unmarshal(u.AppointmentDetails, &d); err != nil {
		return ""
	}
	return d.AppointmentType
}

// Summary is the user projection returned to the user themselves. Raw
// appointment details are left out on purpose.
type Summary struct {
	ID                    uuid.UUID     `json:"id"`
	Phone                 string        `json:"phone"`
	Name                  string        `json:"name"`
	Email                 string        `json:"email"`
	PaymentStatus         PaymentStatus `json:"payment_status"`
	HasAppointmentDetails bool          `json:"has_appointment_details"`
}

func (u *User) Summary() Summary {
	return Summary{
		ID:                    u.ID,
		Phone:                 u.Phone,
		Name:                  u.Name,
		Email:                 u.Email,
		PaymentStatus:         u.PaymentStatus,
		HasAppointmentDetails: u.HasAppointmentDetails(),
	}
}

// Appointment is the saved appointment as the user sees it.
type Appointment struct {
	User               Summary         `json:"user"`
	PassportNumber     string          `json:"passport_number"`
	AppointmentDetails json.RawMessage `json:"appointment_details"`
	HasSlip            bool            `json:"has_slip"`
}

func (u *User) Appointment() Appointment {
	details := u.AppointmentDetails
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	return Appointment{
		User:               u.Summary(),
		PassportNumber:     u.PassportNumber,
		AppointmentDetails: details,
		HasSlip:            u.HasSlip(),
	}
}

// ListFilter narrows a user listing.
type ListFilter struct {
	PaymentStatus PaymentStatus
	Search        string
}

// Stats are counts over all users, independent of any filter.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	WithSlip   int `json:"with_slip"`
}
