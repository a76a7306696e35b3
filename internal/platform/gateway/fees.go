package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Appointment categories with a listed fee.
const (
	AppointmentGeneralCheckup = "general_checkup"
	AppointmentVisaMedical    = "visa_medical"
	AppointmentSpecialist     = "specialist_consultation"
	AppointmentFollowUp       = "follow_up"
)

// FeeSchedule maps appointment types to fees in minor units (paise).
type FeeSchedule struct {
	Default int64            `yaml:"default"`
	Fees    map[string]int64 `yaml:"fees"`
}

// DefaultFeeSchedule is used when no schedule file is configured.
func DefaultFeeSchedule() *FeeSchedule {
	return &FeeSchedule{
		Default: 150000,
		Fees: map[string]int64{
			AppointmentGeneralCheckup: 150000,
			AppointmentVisaMedical:    350000,
			AppointmentSpecialist:     250000,
			AppointmentFollowUp:       80000,
		},
	}
}

// LoadFeeSchedule reads a YAML schedule and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadFeeSchedule(path string) (*FeeSchedule, error) {
	schedule := DefaultFeeSchedule()
	if path == "" {
		return schedule, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fee schedule: %w", err)
	}

	var override FeeSchedule
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse fee schedule: %w", err)
	}
	if override.Default < 0 {
		return nil, fmt.Errorf("fee schedule: default fee must not be negative")
	}
	if override.Default > 0 {
		schedule.Default = override.Default
	}
	for k, v := range override.Fees {
		if v <= 0 {
			return nil, fmt.Errorf("fee schedule: fee for %q must be positive", k)
		}
		schedule.Fees[k] = v
	}
	return schedule, nil
}

// AmountForAppointmentType returns the fee for t, or the default for
// unknown types.
func (s *FeeSchedule) AmountForAppointmentType(t string) int64 {
	if fee, ok := s.Fees[t]; ok {
		return fee
	}
	return s.Default
}

// Known reports whether t has a listed fee.
func (s *FeeSchedule) Known(t string) bool {
	_, ok := s.Fees[t]
	return ok
}
