package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"authentication", Unauthenticated("bad credentials"), KindAuthentication},
		{"authorization", Forbidden("not allowed"), KindAuthorization},
		{"validation", Invalid("bad input"), KindValidation},
		{"not found", NotFound("missing"), KindNotFound},
		{"rate limited", RateLimited("slow down"), KindRateLimited},
		{"untyped defaults to unexpected", errors.New("boom"), KindUnexpected},
		{"wrapped chain", Wrap(errors.New("cause"), KindAuthentication, "denied"), KindAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authentication", Unauthenticated("x"), http.StatusUnauthorized},
		{"authorization", Forbidden("x"), http.StatusForbidden},
		{"validation", Invalid("x"), http.StatusBadRequest},
		{"not found", NotFound("x"), http.StatusNotFound},
		{"rate limited", RateLimited("x"), http.StatusTooManyRequests},
		{"untyped", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMessageOfHidesInternals(t *testing.T) {
	cause := errors.New("connection refused to 10.0.0.4:9042")
	err := Internal(cause)

	msg := MessageOf(err)
	if msg != "something went wrong, please try again later" {
		t.Errorf("unexpected client message: %q", msg)
	}
	if msg == cause.Error() {
		t.Error("internal cause leaked to client message")
	}

	// Untyped errors get the same generic message.
	if got := MessageOf(cause); got != msg {
		t.Errorf("untyped error message = %q, want generic", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("query timeout")
	err := Wrap(cause, KindUnexpected, "could not process request")

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
	if err.Error() != "could not process request: query timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWithField(t *testing.T) {
	err := Invalid("validation failed").
		WithField("email", "must be a valid email address").
		WithField("deviceId", "required")

	fields := FieldsOf(err)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields["email"] != "must be a valid email address" {
		t.Errorf("email field = %q", fields["email"])
	}

	if FieldsOf(errors.New("plain")) != nil {
		t.Error("untyped error should carry no fields")
	}
}
