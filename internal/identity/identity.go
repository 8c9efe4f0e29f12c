package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateEmail     = errors.New("email address already registered")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("identity not found")
	ErrStoreUnavailable   = errors.New("identity store unavailable")
)

// Identity is an authenticatable principal.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists identities and their password hashes.
type Store interface {
	Create(ctx context.Context, email, passwordHash string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, string, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Service creates and authenticates identities.
type Service struct {
	store Store
	cost  int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService returns a Service hashing with the given bcrypt cost;
// zero selects BcryptCost.
func NewService(store Store, cost int) *Service {
	if cost == 0 {
		cost = BcryptCost
	}
	return &Service{store: store, cost: cost}
}

// CreateIdentity registers email with password. It fails with
// ErrDuplicateEmail or a wrapped ErrWeakPassword.
func (s *Service) CreateIdentity(ctx context.Context, email, password string) (*Identity, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.Create(ctx, email, hash)
}

// Authenticate returns the identity for email if password matches.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	ident, hash, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn comparable time so unknown emails are not cheaper.
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := verifyPassword(hash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return ident, nil
}

// SetPassword replaces the password of the identity registered under email.
func (s *Service) SetPassword(ctx context.Context, email, password string) (*Identity, error) {
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	ident, _, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, ident.ID, hash); err != nil {
		return nil, err
	}
	return ident, nil
}

// Lookup returns the identity registered under email.
func (s *Service) Lookup(ctx context.Context, email string) (*Identity, error) {
	ident, _, err := s.store.GetByEmail(ctx, email)
	return ident, err
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.cost)
	})
	return s.dummyHash
}
