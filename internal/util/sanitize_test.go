package util

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Admin@Wafipix.COM", "admin@wafipix.com"},
		{"  user@example.com  ", "user@example.com"},
		{"already@lower.io", "already@lower.io"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"admin@wafipix.com",
		"first.last+tag@sub.domain.co",
		"a@b.io",
	}
	invalid := []string{
		"",
		"no-at-sign",
		"@missing.local",
		"missing@domain",
		"spaces in@mail.com",
		"x@" + strings.Repeat("d", 260) + ".com",
	}

	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false, want true", e)
		}
	}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"device-1", "device-1"},
		{"  padded  ", "padded"},
		{"line\r\nbreaks\tand\x00nulls", "linebreaksandnulls"},
		{"del\x7fchar", "delchar"},
	}

	for _, tt := range tests {
		if got := SanitizeInput(tt.in); got != tt.want {
			t.Errorf("SanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
