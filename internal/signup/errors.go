package signup

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	msgMissingField    = "missing required field"
	msgInvalidInvite   = "invalid or expired invitation"
	msgEmailMismatch   = "email does not match invitation"
	StageProfile       = "profile"
	StageTokenConsumed = "token"
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError rejects a registration because of the invitation. Its message is
// deliberately generic.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RegistrationError means the identity could not be created. No state
// changed and the invitation is still redeemable.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return "registration failed: " + e.Err.Error()
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// PartialFailureError means the identity exists but a later step failed.
// Stage is StageProfile or StageTokenConsumed.
type PartialFailureError struct {
	Stage      string
	IdentityID uuid.UUID
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("registration incomplete at %s stage for identity %s: %v", e.Stage, e.IdentityID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
