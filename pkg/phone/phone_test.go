package phone

import (
	"fmt"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := map[string]string{
		"9876543210":         "+919876543210",
		"+919876543210":      "+919876543210",
		"919876543210":       "+919876543210",
		"09876543210":        "+919876543210",
		"+91 98765-43210":    "+919876543210",
		"(987) 654.3210":     "+919876543210",
		" +91 (98765) 43210": "+919876543210",
		"12345":              "12345",
	}
	for in, want := range tests {
		if got := Format(in); got != want {
			t.Errorf("Format(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatThenValid_AllMobilePrefixes(t *testing.T) {
	for first := 0; first <= 9; first++ {
		for _, prefix := range []string{"", "+91", "91", "0", "+91 "} {
			raw := fmt.Sprintf("%s%d123456789", prefix, first)
			got := Valid(Format(raw))
			want := first >= 6
			if got != want {
				t.Errorf("Valid(Format(%q)) = %v, want %v", raw, got, want)
			}
		}
	}
}

func TestValid_RejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "9876543210", "+9198765432", "+9198765432101", "+92 9876543210", "+91987654321a"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+919876543210"); got != "+91******3210" {
		t.Errorf("unexpected mask %q", got)
	}
	if got := Mask("123"); got != "****" {
		t.Errorf("unexpected short mask %q", got)
	}
}
