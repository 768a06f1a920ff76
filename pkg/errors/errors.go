package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so callers can compare against a sentinel built with New.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" if none.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsRuleViolation reports whether err is an expected business-rule rejection
// rather than an invalid argument or an infrastructure failure.
func IsRuleViolation(err error) bool {
	return ruleCodes[CodeOf(err)]
}

// Common error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
)

// Rule violation codes
const (
	ErrCodeCooldownActive         = "COOLDOWN_ACTIVE"
	ErrCodeInsufficientAuthority  = "INSUFFICIENT_AUTHORITY"
	ErrCodeDecadenceTooHigh       = "DECADENCE_TOO_HIGH"
	ErrCodeIncompatibleGovernment = "INCOMPATIBLE_GOVERNMENT"
	ErrCodeIneligibleEntity       = "INELIGIBLE_ENTITY"
	ErrCodeVassalageNotAllowed    = "VASSALAGE_NOT_ALLOWED"
	ErrCodeOfferExpired           = "OFFER_EXPIRED"
	ErrCodeOfferMismatch          = "OFFER_MISMATCH"
	ErrCodeNoRelationship         = "NO_RELATIONSHIP"
	ErrCodePolicyNotActive        = "POLICY_NOT_ACTIVE"
	ErrCodeUnknownEntity          = "UNKNOWN_ENTITY"
	ErrCodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
)

var ruleCodes = map[string]bool{
	ErrCodeCooldownActive:         true,
	ErrCodeInsufficientAuthority:  true,
	ErrCodeDecadenceTooHigh:       true,
	ErrCodeIncompatibleGovernment: true,
	ErrCodeIneligibleEntity:       true,
	ErrCodeVassalageNotAllowed:    true,
	ErrCodeOfferExpired:           true,
	ErrCodeOfferMismatch:          true,
	ErrCodeNoRelationship:         true,
	ErrCodePolicyNotActive:        true,
	ErrCodeUnknownEntity:          true,
	ErrCodeNotFound:               true,
	ErrCodeAlreadyExists:          true,
	ErrCodeValidationFailed:       true,
	ErrCodeInsufficientFunds:      true,
}
