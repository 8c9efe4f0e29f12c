package auth

import (
	"context"
	"net/http"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDContextKey is the context key for storing user ID
	UserIDContextKey contextKey = "user_id"
	// RoleContextKey is the context key for storing the session role
	RoleContextKey contextKey = "role"
)

// AuthMiddleware validates the session cookie and injects the user ID and
// role into context. An invalid session clears the cookie and continues
// unauthenticated.
func AuthMiddleware(secret string, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w, isProduction)
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSession(r.Context(), claims.UserID, profiles.Role(claims.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSession stores an authenticated user and role in ctx.
func WithSession(ctx context.Context, userID uuid.UUID, role profiles.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDContextKey, userID)
	return context.WithValue(ctx, RoleContextKey, role)
}

// RequireAuth returns 401 if the user is not authenticated
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff returns 401 for anonymous requests and 403 unless the session
// role is staff or admin.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetUserID(ctx) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		if !GetRole(ctx).IsStaff() {
			apperrors.WriteForbidden(w, r, "Staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

// ActorID returns the authenticated user as an audit actor, or nil.
func ActorID(ctx context.Context) *uuid.UUID {
	id := GetUserID(ctx)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func GetRole(ctx context.Context) profiles.Role {
	role, _ := ctx.Value(RoleContextKey).(profiles.Role)
	return role
}
