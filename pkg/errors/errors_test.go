package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "Without cause",
			err:  New(ErrCodeCooldownActive, "government change on cooldown"),
			want: "COOLDOWN_ACTIVE: government change on cooldown",
		},
		{
			name: "With cause",
			err:  Wrap(fmt.Errorf("connection refused"), ErrCodeInternalError, "failed to save authority"),
			want: "INTERNAL_ERROR: failed to save authority (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_IsAndCode(t *testing.T) {
	err := fmt.Errorf("enact: %w", New(ErrCodeInsufficientAuthority, "need 40, have 10"))

	if !stderrors.Is(err, New(ErrCodeInsufficientAuthority, "")) {
		t.Error("errors.Is() should match on code through wrapping")
	}
	if stderrors.Is(err, New(ErrCodeCooldownActive, "")) {
		t.Error("errors.Is() matched a different code")
	}
	if got := CodeOf(err); got != ErrCodeInsufficientAuthority {
		t.Errorf("CodeOf() = %q, want %q", got, ErrCodeInsufficientAuthority)
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("CodeOf() of a plain error should be empty")
	}
}

func TestIsRuleViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "Cooldown", err: New(ErrCodeCooldownActive, "x"), want: true},
		{name: "Vassalage", err: New(ErrCodeVassalageNotAllowed, "x"), want: true},
		{name: "Validation", err: New(ErrCodeValidation, "nil entity"), want: false},
		{name: "Internal", err: Wrap(fmt.Errorf("io"), ErrCodeInternalError, "x"), want: false},
		{name: "Nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRuleViolation(tt.err); got != tt.want {
				t.Errorf("IsRuleViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
