package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, p Profile) (*Profile, error) {
	if p.Role == "" {
		p.Role = RoleTrainee
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (identity_id, email, firstname, lastname, cohort_id, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.IdentityID, p.Email, p.FirstName, p.LastName, p.CohortID, p.Role).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Get(ctx context.Context, identityID uuid.UUID) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT identity_id, email, firstname, lastname, cohort_id, role, created_at
		FROM profiles
		WHERE identity_id = $1
	`, identityID).Scan(&p.IdentityID, &p.Email, &p.FirstName, &p.LastName, &p.CohortID, &p.Role, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Profile, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			roles[i] = string(r)
		}
		where = append(where, "role = ANY("+arg(roles)+"::text[])")
	}
	if filter.CohortID != nil {
		where = append(where, "cohort_id = "+arg(*filter.CohortID))
	}
	if filter.IdentityIDs != nil {
		ids := make([]string, len(filter.IdentityIDs))
		for i, id := range filter.IdentityIDs {
			ids[i] = id.String()
		}
		where = append(where, "identity_id = ANY("+arg(ids)+"::uuid[])")
	}

	query := `SELECT identity_id, email, firstname, lastname, cohort_id, role, created_at FROM profiles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var list []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.IdentityID, &p.Email, &p.FirstName, &p.LastName, &p.CohortID, &p.Role, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return list, nil
}
