package model

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"admin", RoleAdmin},
		{"support", RoleSupport},
		{"designer", RoleDesigner},
		{"customer", RoleCustomer},
		{"", RoleCustomer},
		{"superuser", RoleCustomer},
	}

	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChallengeValid(t *testing.T) {
	now := time.Now().UTC()
	base := OTPChallenge{
		ExpiresAt:    now.Add(10 * time.Minute),
		AttemptCount: 0,
		MaxAttempts:  3,
	}

	tests := []struct {
		name   string
		mutate func(*OTPChallenge)
		want   bool
	}{
		{"fresh", func(*OTPChallenge) {}, true},
		{"consumed", func(c *OTPChallenge) { c.IsUsed = true }, false},
		{"expired", func(c *OTPChallenge) { c.ExpiresAt = now.Add(-time.Second) }, false},
		{"attempts exhausted", func(c *OTPChallenge) { c.AttemptCount = 3 }, false},
		{"last attempt remaining", func(c *OTPChallenge) { c.AttemptCount = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := base
			tt.mutate(&ch)
			if got := ch.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
