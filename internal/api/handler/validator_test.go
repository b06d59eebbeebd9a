package handler

import (
	"errors"
	"strings"
	"testing"

	"github.com/scoutnetworking/scout-auth/internal/core/domain"
)

func TestValidator_StrongPassword(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		password string
		ok       bool
	}{
		{"Sup3r#secret", true},
		{"Aa1!aaaa", true},
		{"Aa1!aaa", false},
		{"alllower1!", false},
		{"ALLUPPER1!", false},
		{"NoDigits!!", false},
		{"NoSymbol12", false},
	}
	for _, tt := range tests {
		err := v.Validate(&registerRequest{Email: "a@example.com", Password: tt.password})
		if tt.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tt.password, err)
		}
		if !tt.ok && !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", tt.password, err)
		}
	}
}

func TestValidator_Messages(t *testing.T) {
	err := NewValidator().Validate(&registerRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "email is required") || !strings.Contains(msg, "password is required") {
		t.Fatalf("unexpected message: %q", msg)
	}
}
