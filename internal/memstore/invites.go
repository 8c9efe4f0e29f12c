// Package memstore provides mutex-guarded in-memory implementations of the
// persistence interfaces, for tests and local tooling.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/invites"
	"github.com/google/uuid"
)

// Hook lets a test inject a failure (or a delay) before an operation runs.
// A non-nil error is returned to the caller unchanged.
type Hook func(ctx context.Context, op string) error

type inviteRow struct {
	inv            invites.Invitation
	claimID        string
	claimExpiresAt time.Time
}

// Invites implements invites.Store.
type Invites struct {
	mu     sync.Mutex
	byHash map[string]*inviteRow
	Hook   Hook
}

func NewInvites() *Invites {
	return &Invites{byHash: make(map[string]*inviteRow)}
}

func (s *Invites) hook(ctx context.Context, op string) error {
	if s.Hook == nil {
		return nil
	}
	return s.Hook(ctx, op)
}

func (s *Invites) Insert(ctx context.Context, rec invites.Record) (*invites.Invitation, error) {
	if err := s.hook(ctx, "insert"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(rec.TokenHash)
	if _, ok := s.byHash[key]; ok {
		return nil, invites.ErrDuplicateToken
	}

	row := &inviteRow{inv: invites.Invitation{
		ID:        uuid.New(),
		Email:     rec.Email,
		CohortID:  rec.CohortID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
		CreatedBy: rec.CreatedBy,
	}}
	s.byHash[key] = row

	inv := row.inv
	return &inv, nil
}

func (s *Invites) GetByHash(ctx context.Context, hash []byte) (*invites.Invitation, error) {
	if err := s.hook(ctx, "get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byHash[string(hash)]
	if !ok {
		return nil, invites.ErrNotFound
	}
	inv := row.inv
	return &inv, nil
}

func (s *Invites) MarkUsed(ctx context.Context, hash []byte, now time.Time) (bool, error) {
	if err := s.hook(ctx, "mark_used"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byHash[string(hash)]
	if !ok {
		return false, nil
	}
	if !row.inv.IsUsed {
		row.inv.IsUsed = true
		row.inv.UsedAt = &now
	}
	row.claimID = ""
	return true, nil
}

func (s *Invites) Claim(ctx context.Context, hash []byte, claimID string, now, leaseUntil time.Time) (*invites.Invitation, error) {
	if err := s.hook(ctx, "claim"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byHash[string(hash)]
	if !ok || row.inv.IsUsed || now.After(row.inv.ExpiresAt) {
		return nil, invites.ErrTokenUnavailable
	}
	if row.claimID != "" && !row.claimExpiresAt.Before(now) {
		return nil, invites.ErrTokenUnavailable
	}

	row.claimID = claimID
	row.claimExpiresAt = leaseUntil
	inv := row.inv
	return &inv, nil
}

func (s *Invites) CommitClaim(ctx context.Context, hash []byte, claimID string, now time.Time, usedBy uuid.UUID) (bool, error) {
	if err := s.hook(ctx, "commit"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byHash[string(hash)]
	if !ok || row.inv.IsUsed || row.claimID != claimID {
		return false, nil
	}

	row.inv.IsUsed = true
	row.inv.UsedAt = &now
	row.inv.UsedBy = &usedBy
	row.claimID = ""
	return true, nil
}

func (s *Invites) ReleaseClaim(ctx context.Context, hash []byte, claimID string) error {
	if err := s.hook(ctx, "release"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.byHash[string(hash)]; ok && row.claimID == claimID {
		row.claimID = ""
	}
	return nil
}

func (s *Invites) Rotate(ctx context.Context, id uuid.UUID, hash []byte, now time.Time) (*invites.Invitation, error) {
	if err := s.hook(ctx, "rotate"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[string(hash)]; ok {
		return nil, invites.ErrDuplicateToken
	}
	for key, row := range s.byHash {
		if row.inv.ID != id {
			continue
		}
		if row.inv.IsUsed || now.After(row.inv.ExpiresAt) {
			return nil, invites.ErrTokenUnavailable
		}
		if row.claimID != "" && !row.claimExpiresAt.Before(now) {
			return nil, invites.ErrTokenUnavailable
		}
		delete(s.byHash, key)
		row.claimID = ""
		s.byHash[string(hash)] = row
		inv := row.inv
		return &inv, nil
	}
	return nil, invites.ErrNotFound
}

func (s *Invites) List(ctx context.Context, filter invites.ListFilter, now time.Time) ([]invites.Invitation, error) {
	if err := s.hook(ctx, "list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []invites.Invitation
	for _, row := range s.byHash {
		inv := row.inv
		if filter.Email != "" && inv.Email != filter.Email {
			continue
		}
		if filter.CohortID != nil && (inv.CohortID == nil || *inv.CohortID != *filter.CohortID) {
			continue
		}
		if filter.Status != "" && inv.StatusAt(now) != filter.Status {
			continue
		}
		out = append(out, inv)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ClaimHolder reports the live claim id on the invitation for hash, if any.
func (s *Invites) ClaimHolder(hash []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.byHash[string(hash)]; ok {
		return row.claimID
	}
	return ""
}

// Len returns the number of stored invitations.
func (s *Invites) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}
