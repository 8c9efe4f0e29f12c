package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*identity.Identity, error)
}

// ProfileReader loads the profile attached to an identity.
type ProfileReader interface {
	Get(ctx context.Context, identityID uuid.UUID) (*profiles.Profile, error)
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	UserID    uuid.UUID     `json:"user_id"`
	Email     string        `json:"email"`
	FirstName string        `json:"firstname"`
	LastName  string        `json:"lastname"`
	Role      profiles.Role `json:"role"`
}

// SessionConfig carries the cookie and token settings for login.
type SessionConfig struct {
	Secret       string
	SessionDays  int
	IsProduction bool
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(authn Authenticator, profileStore ProfileReader, auditor *audit.Writer, cfg SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := strings.TrimSpace(req.Email)
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		ident, err := authn.Authenticate(ctx, email, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				log.Debug().Msg("Login failed: invalid credentials")
				if auditor != nil {
					if err := auditor.LogLoginFailed(ctx, email, r.RemoteAddr); err != nil {
						log.Error().Err(err).Msg("Failed to log audit event")
					}
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Msg("Failed to authenticate")
			apperrors.WriteServiceUnavailable(w, r, "Login temporarily unavailable")
			return
		}

		profile, err := profileStore.Get(ctx, ident.ID)
		if err != nil {
			if errors.Is(err, profiles.ErrNotFound) {
				log.Warn().Str("user_id", ident.ID.String()).Msg("Login for identity without profile")
				apperrors.WriteForbidden(w, r, "Account setup incomplete. Contact staff.")
				return
			}
			log.Error().Err(err).Msg("Failed to load profile")
			apperrors.WriteServiceUnavailable(w, r, "Login temporarily unavailable")
			return
		}

		token, err := CreateToken(ident.ID, string(profile.Role), cfg.Secret, cfg.SessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, cfg.SessionDays, cfg.IsProduction)

		if auditor != nil {
			if err := auditor.LogLogin(ctx, ident.ID, r.RemoteAddr); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		log.Info().
			Str("user_id", ident.ID.String()).
			Str("role", string(profile.Role)).
			Msg("User logged in")

		apperrors.WriteSuccess(w, r, http.StatusOK, LoginResponse{
			UserID:    ident.ID,
			Email:     ident.Email,
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Role:      profile.Role,
		})
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w, isProduction)

		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			log.Info().Str("user_id", userID.String()).Msg("User logged out")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"logged_out": true,
			"redirect":   "/sign-in",
		})
	}
}

// HandleMe handles GET /api/v1/auth/me
func HandleMe(profileStore ProfileReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := profileStore.Get(r.Context(), GetUserID(r.Context()))
		if err != nil {
			if errors.Is(err, profiles.ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Profile not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load profile")
			apperrors.WriteServiceUnavailable(w, r, "Profile temporarily unavailable")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"profile": profile})
	}
}
