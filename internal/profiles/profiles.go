package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrExists   = errors.New("profile already exists")
)

type Role string

const (
	RoleTrainee Role = "trainee"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleTrainee, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may manage cohorts and invitations.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Profile is the application-level record attached to an identity.
type Profile struct {
	IdentityID uuid.UUID  `json:"identity_id"`
	Email      string     `json:"email"`
	FirstName  string     `json:"firstname"`
	LastName   string     `json:"lastname"`
	CohortID   *uuid.UUID `json:"cohort_id,omitempty"`
	Role       Role       `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filter selects profiles for List. Empty fields match everything; set
// fields are combined with AND.
type Filter struct {
	Roles       []Role
	CohortID    *uuid.UUID
	IdentityIDs []uuid.UUID
}

type Store interface {
	Insert(ctx context.Context, p Profile) (*Profile, error)
	Get(ctx context.Context, identityID uuid.UUID) (*Profile, error)
	List(ctx context.Context, filter Filter) ([]Profile, error)
}
