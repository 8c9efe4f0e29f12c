package cohorts

import (
	"context"
	"errors"
	"fmt"

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

func (p *PostgresStore) Create(ctx context.Context, name, kind string) (*Cohort, error) {
	var c Cohort
	err := p.pool.QueryRow(ctx, `
		INSERT INTO cohorts (name, kind)
		VALUES ($1, $2)
		RETURNING id, name, kind, created_at
	`, name, kind).Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrNameConflict
		}
		return nil, fmt.Errorf("failed to create cohort: %w", err)
	}
	return &c, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]Cohort, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, kind, created_at
		FROM cohorts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
	}
	defer rows.Close()

	var list []Cohort
	for rows.Next() {
		var c Cohort
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cohorts: %w", err)
	}
	return list, nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	return p.getOne(ctx, `SELECT id, name, kind, created_at FROM cohorts WHERE id = $1`, id)
}

func (p *PostgresStore) GetByName(ctx context.Context, name string) (*Cohort, error) {
	return p.getOne(ctx, `SELECT id, name, kind, created_at FROM cohorts WHERE name = $1`, name)
}

func (p *PostgresStore) getOne(ctx context.Context, query string, arg any) (*Cohort, error) {
	var c Cohort
	err := p.pool.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Kind, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load cohort: %w", err)
	}
	return &c, nil
}
