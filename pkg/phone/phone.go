// Package phone normalises Indian mobile numbers to +91XXXXXXXXXX.
package phone

import (
	"regexp"
	"strings"
)

const CountryCode = "91"

var nationalPattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// Format strips separators, a leading "+", trunk "0" and the "91" country
// code, then prefixes "+91". Input that does not reduce to ten digits is
// returned in its stripped form so Valid rejects it.
func Format(raw string) string {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	digits = strings.TrimPrefix(digits, "+")

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, CountryCode):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	case len(digits) == 13 && strings.HasPrefix(digits, "0"+CountryCode):
		digits = digits[3:]
	}

	if len(digits) != 10 {
		return digits
	}
	return "+" + CountryCode + digits
}

// Valid reports whether s is a formatted number whose national part is a
// mobile number (ten digits, first digit 6-9).
func Valid(s string) bool {
	national, ok := strings.CutPrefix(s, "+"+CountryCode)
	return ok && nationalPattern.MatchString(national)
}

// Mask keeps the country code and the last four digits for logging.
func Mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	prefix := ""
	if strings.HasPrefix(s, "+"+CountryCode) {
		prefix = "+" + CountryCode
	}
	return prefix + strings.Repeat("*", len(s)-len(prefix)-4) + s[len(s)-4:]
}
