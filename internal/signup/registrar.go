package signup

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Tokens is the part of invites.Service the registrar depends on.
type Tokens interface {
	VerifyToken(ctx context.Context, token string) bool
	GetTokenData(ctx context.Context, token string) (*invites.Invitation, error)
	Claim(ctx context.Context, token string) (*invites.Claim, error)
}

type Identities interface {
	CreateIdentity(ctx context.Context, email, password string) (*identity.Identity, error)
}

type Input struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Token       string `json:"token"`
}

// Account is the result of a completed registration.
type Account struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstname"`
	LastName  string     `json:"lastname"`
	CohortID  *uuid.UUID `json:"cohort_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Registrar creates accounts gated by a valid invitation bound to the
// registering email.
type Registrar struct {
	tokens     Tokens
	identities Identities
	profiles   profiles.Store
	auditor    *audit.Writer
	timeout    time.Duration
}

// NewRegistrar wires the registration flow. auditor may be nil.
func NewRegistrar(tokens Tokens, identities Identities, profileStore profiles.Store, auditor *audit.Writer, stepTimeout time.Duration) *Registrar {
	if stepTimeout <= 0 {
		stepTimeout = 3 * time.Second
	}
	return &Registrar{
		tokens:     tokens,
		identities: identities,
		profiles:   profileStore,
		auditor:    auditor,
		timeout:    stepTimeout,
	}
}

func validate(in Input) error {
	switch {
	case strings.TrimSpace(in.Email) == "":
		return &ValidationError{Field: "email", Message: msgMissingField}
	case in.Password == "":
		return &ValidationError{Field: "password", Message: msgMissingField}
	case strings.TrimSpace(in.DisplayName) == "":
		return &ValidationError{Field: "display_name", Message: msgMissingField}
	case strings.TrimSpace(in.Token) == "":
		return &ValidationError{Field: "token", Message: msgMissingField}
	}
	return nil
}

// Register runs the sign-up protocol. Errors are one of *ValidationError,
// *AuthError, *RegistrationError, *PartialFailureError, or a wrapped
// invites.ErrStoreUnavailable.
func (r *Registrar) Register(ctx context.Context, in Input) (*Account, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	token := strings.TrimSpace(in.Token)

	if !r.tokens.VerifyToken(ctx, token) {
		return nil, &AuthError{Message: msgInvalidInvite}
	}

	inv, err := r.tokens.GetTokenData(ctx, token)
	if err != nil {
		if errors.Is(err, invites.ErrNotFound) {
			return nil, &AuthError{Message: msgEmailMismatch}
		}
		return nil, err
	}
	if inv.Email != in.Email {
		log.Debug().Str("invitation_id", inv.ID.String()).Msg("Registration email does not match invitation")
		return nil, &AuthError{Message: msgEmailMismatch}
	}

	claim, err := r.tokens.Claim(ctx, token)
	if err != nil {
		if errors.Is(err, invites.ErrTokenUnavailable) {
			log.Debug().Str("invitation_id", inv.ID.String()).Msg("Invitation claimed by a concurrent registration")
			return nil, &AuthError{Message: msgInvalidInvite}
		}
		return nil, err
	}
	inv = &claim.Invitation

	ident, err := r.createIdentity(ctx, in.Email, in.Password)
	if err != nil {
		if relErr := claim.Release(ctx); relErr != nil {
			log.Warn().Err(relErr).Str("invitation_id", inv.ID.String()).Msg("Failed to release invitation claim")
		}
		log.Info().Err(err).Str("invitation_id", inv.ID.String()).Msg("Identity creation rejected")
		return nil, &RegistrationError{Err: err}
	}

	first, last := SplitDisplayName(in.DisplayName)
	profile, err := r.insertProfile(ctx, profiles.Profile{
		IdentityID: ident.ID,
		Email:      ident.Email,
		FirstName:  first,
		LastName:   last,
		CohortID:   inv.CohortID,
		Role:       profiles.RoleTrainee,
	})
	if err != nil {
		// The invitation was not consumed; release it so the lease does not
		// linger. The orphaned identity needs operator reconciliation.
		if relErr := claim.Release(ctx); relErr != nil {
			log.Warn().Err(relErr).Str("invitation_id", inv.ID.String()).Msg("Failed to release invitation claim")
		}
		return nil, r.partialFailure(ctx, StageProfile, ident.ID, inv.ID, err)
	}

	if err := claim.Commit(ctx, ident.ID); err != nil {
		return nil, r.partialFailure(ctx, StageTokenConsumed, ident.ID, inv.ID, err)
	}

	log.Info().
		Str("user_id", ident.ID.String()).
		Str("invitation_id", inv.ID.String()).
		Msg("Trainee registered")

	if r.auditor != nil {
		if err := r.auditor.LogUserRegistered(context.WithoutCancel(ctx), ident.ID, inv.ID, ident.Email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
	}

	return &Account{
		ID:        ident.ID,
		Email:     ident.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		CohortID:  profile.CohortID,
		CreatedAt: ident.CreatedAt,
	}, nil
}

func (r *Registrar) createIdentity(ctx context.Context, email, password string) (*identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.identities.CreateIdentity(ctx, email, password)
}

func (r *Registrar) insertProfile(ctx context.Context, p profiles.Profile) (*profiles.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.profiles.Insert(ctx, p)
}

func (r *Registrar) partialFailure(ctx context.Context, stage string, identityID, inviteID uuid.UUID, cause error) error {
	log.Error().
		Err(cause).
		Str("stage", stage).
		Str("identity_id", identityID.String()).
		Str("invitation_id", inviteID.String()).
		Msg("PARTIAL REGISTRATION: identity created but registration did not complete")

	if r.auditor != nil {
		if err := r.auditor.LogSignupPartialFailure(context.WithoutCancel(ctx), identityID, inviteID, stage, cause.Error()); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
	}

	return &PartialFailureError{Stage: stage, IdentityID: identityID, Err: cause}
}
