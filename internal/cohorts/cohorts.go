package cohorts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("cohort not found")
	ErrNameConflict = errors.New("cohort name already exists")
	ErrKindTooLong  = errors.New("kind must be at most 50 characters")
)

// Cohort is a named batch of trainees.
type Cohort struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Create(ctx context.Context, name, kind string) (*Cohort, error)
	List(ctx context.Context) ([]Cohort, error)
	Get(ctx context.Context, id uuid.UUID) (*Cohort, error)
	GetByName(ctx context.Context, name string) (*Cohort, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, name, kind string) (*Cohort, error) {
	name, err := validation.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	kind = strings.TrimSpace(kind)
	if len(kind) > 50 {
		return nil, ErrKindTooLong
	}
	return s.store.Create(ctx, name, kind)
}

func (s *Service) List(ctx context.Context) ([]Cohort, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	return s.store.Get(ctx, id)
}

// Resolve accepts either a cohort UUID or its exact name.
func (s *Service) Resolve(ctx context.Context, ref string) (*Cohort, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.store.Get(ctx, id)
	}
	return s.store.GetByName(ctx, ref)
}
