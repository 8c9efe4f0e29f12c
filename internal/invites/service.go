package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/ids"
	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	DefaultValidityDays int
	StoreTimeout        time.Duration
	ClaimTTL            time.Duration
}

// Service owns the invitation state machine: issued, consumed, expired.
type Service struct {
	store        Store
	defaultDays  int
	storeTimeout time.Duration
	claimTTL     time.Duration

	// Now is the clock used for issuance and expiry checks.
	Now func() time.Time
	// NewClaimID mints lease identifiers.
	NewClaimID func() string
}

func NewService(store Store, opts Options) *Service {
	if opts.DefaultValidityDays <= 0 {
		opts.DefaultValidityDays = 7
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 5 * time.Minute
	}
	return &Service{
		store:        store,
		defaultDays:  opts.DefaultValidityDays,
		storeTimeout: opts.StoreTimeout,
		claimTTL:     opts.ClaimTTL,
		Now:          func() time.Time { return time.Now().UTC() },
		NewClaimID:   ids.New,
	}
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// bounded runs fn under the store timeout and folds infrastructure errors
// into ErrStoreUnavailable.
func (s *Service) bounded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTokenUnavailable),
		errors.Is(err, ErrDuplicateToken),
		errors.Is(err, ErrCohortNotFound):
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// IssueToken creates a new unused invitation bound to params.Email and
// returns it with the plaintext token populated. The plaintext is never
// stored and cannot be recovered later.
func (s *Service) IssueToken(ctx context.Context, params IssueParams) (*Invitation, error) {
	email, err := validation.NormalizeEmail(params.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}

	days := params.ValidityDays
	if days == 0 {
		days = s.defaultDays
	}
	if days < 1 || days > MaxValidityDays {
		return nil, ErrInvalidValidity
	}

	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		token, hash, err := GenerateToken()
		if err != nil {
			return nil, err
		}

		now := s.now()
		rec := Record{
			TokenHash: hash,
			Email:     email,
			CohortID:  params.CohortID,
			CreatedBy: params.CreatedBy,
			CreatedAt: now,
			ExpiresAt: now.AddDate(0, 0, days),
		}

		var inv *Invitation
		err = s.bounded(ctx, "insert invitation", func(ctx context.Context) error {
			var err error
			inv, err = s.store.Insert(ctx, rec)
			return err
		})
		if err == nil {
			inv.Token = token
			inv.Status = inv.StatusAt(now)
			log.Info().
				Str("invitation_id", inv.ID.String()).
				Time("expires_at", inv.ExpiresAt).
				Msg("Invitation issued")
			return inv, nil
		}
		if errors.Is(err, ErrDuplicateToken) {
			log.Warn().Int("attempt", attempt+1).Msg("Invitation token collision, retrying")
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to issue invitation: token collision retry exhausted")
}

// VerifyToken reports whether token is currently redeemable. It fails
// closed: store errors yield false.
func (s *Service) VerifyToken(ctx context.Context, token string) bool {
	reason, err := s.rejectReason(ctx, token)
	if err != nil {
		log.Error().Err(err).Msg("Invitation verification failed closed")
		return false
	}
	if reason != "" {
		log.Debug().Str("reason", reason).Msg("Invitation rejected")
		return false
	}
	return true
}

// rejectReason classifies why token is not redeemable, or returns "".
func (s *Service) rejectReason(ctx context.Context, token string) (string, error) {
	if !ValidTokenFormat(token) {
		return "malformed", nil
	}

	inv, err := s.lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return "unknown", nil
	}
	if err != nil {
		return "", err
	}

	switch inv.StatusAt(s.now()) {
	case StatusUsed:
		return "used", nil
	case StatusExpired:
		return "expired", nil
	}
	return "", nil
}

// GetTokenData returns the invitation for token in any state.
func (s *Service) GetTokenData(ctx context.Context, token string) (*Invitation, error) {
	if !ValidTokenFormat(token) {
		return nil, ErrNotFound
	}
	return s.lookup(ctx, token)
}

func (s *Service) lookup(ctx context.Context, token string) (*Invitation, error) {
	var inv *Invitation
	err := s.bounded(ctx, "load invitation", func(ctx context.Context) error {
		var err error
		inv, err = s.store.GetByHash(ctx, HashToken(token))
		return err
	})
	if err != nil {
		return nil, err
	}
	inv.Token = token
	inv.Status = inv.StatusAt(s.now())
	return inv, nil
}

// MarkUsed consumes token unconditionally. It is idempotent and returns
// false only when no such invitation exists.
func (s *Service) MarkUsed(ctx context.Context, token string) (bool, error) {
	if !ValidTokenFormat(token) {
		return false, nil
	}

	var found bool
	err := s.bounded(ctx, "mark invitation used", func(ctx context.Context) error {
		var err error
		found, err = s.store.MarkUsed(ctx, HashToken(token), s.now())
		return err
	})
	return found, err
}

// Claim grants the caller an exclusive, time-limited lease on an unused,
// unexpired invitation. Concurrent callers for the same token get
// ErrTokenUnavailable. An abandoned lease lapses after the claim TTL.
func (s *Service) Claim(ctx context.Context, token string) (*Claim, error) {
	if !ValidTokenFormat(token) {
		return nil, ErrTokenUnavailable
	}

	hash := HashToken(token)
	claimID := s.NewClaimID()
	now := s.now()

	var inv *Invitation
	err := s.bounded(ctx, "claim invitation", func(ctx context.Context) error {
		var err error
		inv, err = s.store.Claim(ctx, hash, claimID, now, now.Add(s.claimTTL))
		return err
	})
	if err != nil {
		return nil, err
	}

	inv.Token = token
	inv.Status = inv.StatusAt(now)
	return &Claim{svc: s, hash: hash, id: claimID, Invitation: *inv}, nil
}

// RotateToken replaces the secret of an active invitation and returns it
// with the new plaintext populated. The previous link stops working. An
// invitation that is used, expired or under a live registration lease
// yields ErrTokenUnavailable.
func (s *Service) RotateToken(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	for attempt := 0; attempt < maxIssueRetries; attempt++ {
		token, hash, err := GenerateToken()
		if err != nil {
			return nil, err
		}

		now := s.now()
		var inv *Invitation
		err = s.bounded(ctx, "rotate invitation", func(ctx context.Context) error {
			var err error
			inv, err = s.store.Rotate(ctx, id, hash, now)
			return err
		})
		if err == nil {
			inv.Token = token
			inv.Status = inv.StatusAt(now)
			log.Info().Str("invitation_id", inv.ID.String()).Msg("Invitation link rotated")
			return inv, nil
		}
		if errors.Is(err, ErrDuplicateToken) {
			log.Warn().Int("attempt", attempt+1).Msg("Invitation token collision, retrying")
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to rotate invitation: token collision retry exhausted")
}

// ListTokens returns invitations for the staff listing, newest first.
func (s *Service) ListTokens(ctx context.Context, filter ListFilter) ([]Invitation, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}

	now := s.now()
	var list []Invitation
	err := s.bounded(ctx, "list invitations", func(ctx context.Context) error {
		var err error
		list, err = s.store.List(ctx, filter, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := range list {
		list[i].Status = list[i].StatusAt(now)
	}
	return list, nil
}

// Claim is a registration lease on one invitation.
type Claim struct {
	svc  *Service
	hash []byte
	id   string

	Invitation Invitation
}

func (c *Claim) ID() string {
	return c.id
}

// Commit consumes the invitation on behalf of usedBy. It fails with
// ErrClaimLost when the lease lapsed and someone else took the token.
func (c *Claim) Commit(ctx context.Context, usedBy uuid.UUID) error {
	var ok bool
	err := c.svc.bounded(ctx, "commit invitation claim", func(ctx context.Context) error {
		var err error
		ok, err = c.svc.store.CommitClaim(ctx, c.hash, c.id, c.svc.now(), usedBy)
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

// Release drops the lease so the invitation can be redeemed again.
// It runs even when ctx is already cancelled.
func (c *Claim) Release(ctx context.Context) error {
	return c.svc.bounded(context.WithoutCancel(ctx), "release invitation claim", func(ctx context.Context) error {
		return c.svc.store.ReleaseClaim(ctx, c.hash, c.id)
	})
}
