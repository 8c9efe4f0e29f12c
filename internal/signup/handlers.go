package signup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/rs/zerolog/log"
)

// SignInPath is where a newly registered trainee is sent.
const SignInPath = "/sign-in"

// RegisterResponse is the body of a successful registration.
type RegisterResponse struct {
	Account  *Account `json:"account"`
	Redirect string   `json:"redirect"`
}

// HandleRegister handles POST /api/v1/auth/register
func HandleRegister(reg *Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		account, err := reg.Register(r.Context(), in)
		if err != nil {
			writeRegisterError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, RegisterResponse{
			Account:  account,
			Redirect: SignInPath,
		})
	}
}

func writeRegisterError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr    *ValidationError
		aErr    *AuthError
		regErr  *RegistrationError
		partial *PartialFailureError
	)

	switch {
	case errors.As(err, &vErr):
		apperrors.WriteValidationError(w, r, vErr.Field, vErr.Message)

	case errors.As(err, &aErr):
		apperrors.WriteError(w, r, http.StatusForbidden, "invalid_invitation", aErr.Message)

	case errors.As(err, &regErr):
		switch {
		case errors.Is(err, identity.ErrWeakPassword):
			apperrors.WriteFieldError(w, r, http.StatusUnprocessableEntity, "registration_failed", "password", passwordMessage(err))
		case errors.Is(err, validation.ErrEmailInvalid), errors.Is(err, validation.ErrEmailTooLong):
			apperrors.WriteFieldError(w, r, http.StatusUnprocessableEntity, "registration_failed", "email", "Invalid email address")
		case errors.Is(err, identity.ErrDuplicateEmail):
			apperrors.WriteError(w, r, http.StatusConflict, "registration_failed", "An account with this email already exists")
		case errors.Is(err, identity.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
			log.Error().Err(err).Msg("Identity store unavailable")
			apperrors.WriteServiceUnavailable(w, r, "Registration temporarily unavailable")
		default:
			log.Error().Err(err).Msg("Identity creation failed")
			apperrors.WriteError(w, r, http.StatusConflict, "registration_failed", "Registration failed")
		}

	case errors.As(err, &partial):
		apperrors.WriteError(w, r, http.StatusInternalServerError, "partial_failure",
			"Your account was created but setup did not finish. Staff have been notified.")

	case errors.Is(err, invites.ErrStoreUnavailable):
		apperrors.WriteServiceUnavailable(w, r, "Registration temporarily unavailable")

	default:
		log.Error().Err(err).Msg("Registration failed")
		apperrors.WriteInternalError(w, r, "Registration failed")
	}
}

func passwordMessage(err error) string {
	switch {
	case errors.Is(err, validation.ErrPasswordTooShort):
		return "Password must be at least 8 characters"
	case errors.Is(err, validation.ErrPasswordTooLong):
		return "Password must be at most 72 bytes"
	}
	return "Password does not meet requirements"
}
