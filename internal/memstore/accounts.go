package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/cohorts"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type identityRow struct {
	ident identity.Identity
	hash  string
}

// Identities implements identity.Store.
type Identities struct {
	mu      sync.Mutex
	byEmail map[string]*identityRow
	Hook    Hook
}

func NewIdentities() *Identities {
	return &Identities{byEmail: make(map[string]*identityRow)}
}

func (s *Identities) Create(ctx context.Context, email, passwordHash string) (*identity.Identity, error) {
	if s.Hook != nil {
		if err := s.Hook(ctx, "create_identity"); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, identity.ErrDuplicateEmail
	}
	row := &identityRow{
		ident: identity.Identity{ID: uuid.New(), Email: email, CreatedAt: time.Now().UTC()},
		hash:  passwordHash,
	}
	s.byEmail[email] = row

	ident := row.ident
	return &ident, nil
}

func (s *Identities) GetByEmail(ctx context.Context, email string) (*identity.Identity, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byEmail[email]
	if !ok {
		return nil, "", identity.ErrNotFound
	}
	ident := row.ident
	return &ident, row.hash, nil
}

func (s *Identities) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.byEmail {
		if row.ident.ID == id {
			row.hash = passwordHash
			return nil
		}
	}
	return identity.ErrNotFound
}

func (s *Identities) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail)
}

// Profiles implements profiles.Store.
type Profiles struct {
	mu   sync.Mutex
	rows map[uuid.UUID]profiles.Profile
	Hook Hook
}

func NewProfiles() *Profiles {
	return &Profiles{rows: make(map[uuid.UUID]profiles.Profile)}
}

func (s *Profiles) Insert(ctx context.Context, p profiles.Profile) (*profiles.Profile, error) {
	if s.Hook != nil {
		if err := s.Hook(ctx, "insert_profile"); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[p.IdentityID]; ok {
		return nil, profiles.ErrExists
	}
	if p.Role == "" {
		p.Role = profiles.RoleTrainee
	}
	p.CreatedAt = time.Now().UTC()
	s.rows[p.IdentityID] = p
	return &p, nil
}

func (s *Profiles) Get(ctx context.Context, identityID uuid.UUID) (*profiles.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[identityID]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return &p, nil
}

func (s *Profiles) List(ctx context.Context, filter profiles.Filter) ([]profiles.Profile, error) {
	if s.Hook != nil {
		if err := s.Hook(ctx, "list_profiles"); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []profiles.Profile
	for _, p := range s.rows {
		if len(filter.Roles) > 0 && !slices.Contains(filter.Roles, p.Role) {
			continue
		}
		if filter.CohortID != nil && (p.CohortID == nil || *p.CohortID != *filter.CohortID) {
			continue
		}
		if filter.IdentityIDs != nil && !slices.Contains(filter.IdentityIDs, p.IdentityID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Profiles) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Cohorts implements cohorts.Store.
type Cohorts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]cohorts.Cohort
}

func NewCohorts() *Cohorts {
	return &Cohorts{rows: make(map[uuid.UUID]cohorts.Cohort)}
}

func (s *Cohorts) Create(ctx context.Context, name, kind string) (*cohorts.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.rows {
		if c.Name == name {
			return nil, cohorts.ErrNameConflict
		}
	}
	c := cohorts.Cohort{ID: uuid.New(), Name: name, Kind: kind, CreatedAt: time.Now().UTC()}
	s.rows[c.ID] = c
	return &c, nil
}

func (s *Cohorts) List(ctx context.Context) ([]cohorts.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]cohorts.Cohort, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Cohorts) Get(ctx context.Context, id uuid.UUID) (*cohorts.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[id]
	if !ok {
		return nil, cohorts.ErrNotFound
	}
	return &c, nil
}

func (s *Cohorts) GetByName(ctx context.Context, name string) (*cohorts.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.rows {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, cohorts.ErrNotFound
}

// AuditSink captures audit_log inserts. It satisfies audit.Execer.
type AuditSink struct {
	mu      sync.Mutex
	actions []string
}

func (s *AuditSink) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.Contains(sql, "audit_log") && len(args) >= 2 {
		if action, ok := args[1].(string); ok {
			s.actions = append(s.actions, action)
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// Actions returns recorded audit actions in insertion order.
func (s *AuditSink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}
