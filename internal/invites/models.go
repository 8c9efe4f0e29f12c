package invites

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("invitation not found")
	ErrTokenUnavailable = errors.New("invitation is not available")
	ErrClaimLost        = errors.New("invitation claim no longer held")
	ErrStoreUnavailable = errors.New("invitation store unavailable")
	ErrDuplicateToken   = errors.New("invitation token already exists")
	ErrCohortNotFound   = errors.New("cohort not found")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidValidity  = errors.New("validity must be between 1 and 90 days")
	ErrInvalidStatus    = errors.New("status must be one of: active, used, expired")
)

const (
	MaxValidityDays = 90
	maxIssueRetries = 3
)

// Status is derived from isUsed and expiresAt at read time; it is never stored.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusExpired:
		return true
	}
	return false
}

// Invitation is a single-use sign-up grant bound to one email address.
type Invitation struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	CohortID  *uuid.UUID `json:"cohort_id,omitempty"`
	IsUsed    bool       `json:"is_used"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	Status    Status     `json:"status"`

	// Token is the plaintext secret. It is populated only on issuance,
	// rotation and lookup by token.
	Token string `json:"-"`
}

// StatusAt derives the lifecycle state of inv at the given instant.
func (inv *Invitation) StatusAt(now time.Time) Status {
	switch {
	case inv.IsUsed:
		return StatusUsed
	case now.After(inv.ExpiresAt):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Record is what the store persists on issuance.
type Record struct {
	TokenHash []byte
	Email     string
	CohortID  *uuid.UUID
	CreatedBy *uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ListFilter narrows the staff listing. Zero values match everything.
type ListFilter struct {
	Email    string
	Status   Status
	CohortID *uuid.UUID
	Limit    int
}

// IssueParams describes a new invitation.
type IssueParams struct {
	Email        string
	CohortID     *uuid.UUID
	ValidityDays int
	CreatedBy    *uuid.UUID
}
