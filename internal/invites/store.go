package invites

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists invitations keyed by the SHA-256 hash of their token.
//
// Implementations report a missing row as ErrNotFound, a hash collision on
// Insert as ErrDuplicateToken and an unknown cohort as ErrCohortNotFound.
// Any other error is treated as an infrastructure failure.
type Store interface {
	Insert(ctx context.Context, rec Record) (*Invitation, error)
	GetByHash(ctx context.Context, hash []byte) (*Invitation, error)

	// MarkUsed sets is_used unconditionally and reports whether a row exists.
	MarkUsed(ctx context.Context, hash []byte, now time.Time) (bool, error)

	// Claim leases an unused, unexpired invitation that has no live lease.
	// It returns ErrTokenUnavailable when no row qualifies.
	Claim(ctx context.Context, hash []byte, claimID string, now, leaseUntil time.Time) (*Invitation, error)

	// CommitClaim consumes the invitation if claimID still holds it.
	CommitClaim(ctx context.Context, hash []byte, claimID string, now time.Time, usedBy uuid.UUID) (bool, error)

	// ReleaseClaim drops the lease without consuming.
	ReleaseClaim(ctx context.Context, hash []byte, claimID string) error

	// Rotate swaps the token hash of an active invitation with no live
	// lease. It returns ErrNotFound for an unknown id and
	// ErrTokenUnavailable when the row exists but is not rotatable.
	Rotate(ctx context.Context, id uuid.UUID, hash []byte, now time.Time) (*Invitation, error)

	List(ctx context.Context, filter ListFilter, now time.Time) ([]Invitation, error)
}
