package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `id, email, cohort_id, is_used, expires_at, created_at, created_by, used_at, used_by`

// PostgresStore implements Store on the signup_tokens table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.Email,
		&inv.CohortID,
		&inv.IsUsed,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.CreatedBy,
		&inv.UsedAt,
		&inv.UsedBy,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (p *PostgresStore) Insert(ctx context.Context, rec Record) (*Invitation, error) {
	inv, err := scanInvitation(p.pool.QueryRow(ctx, `
		INSERT INTO signup_tokens (token_hash, email, cohort_id, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationColumns,
		rec.TokenHash, rec.Email, rec.CohortID, rec.CreatedBy, rec.CreatedAt, rec.ExpiresAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, ErrDuplicateToken
			case "23503":
				if pgErr.ConstraintName == "signup_tokens_cohort_id_fkey" {
					return nil, ErrCohortNotFound
				}
			}
		}
		return nil, fmt.Errorf("failed to insert invitation: %w", err)
	}
	return inv, nil
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash []byte) (*Invitation, error) {
	inv, err := scanInvitation(p.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+`
		FROM signup_tokens
		WHERE token_hash = $1
	`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	return inv, nil
}

func (p *PostgresStore) MarkUsed(ctx context.Context, hash []byte, now time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE signup_tokens
		SET is_used = TRUE,
		    used_at = COALESCE(used_at, $2),
		    claim_id = NULL,
		    claim_expires_at = NULL
		WHERE token_hash = $1
	`, hash, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark invitation used: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) Claim(ctx context.Context, hash []byte, claimID string, now, leaseUntil time.Time) (*Invitation, error) {
	inv, err := scanInvitation(p.pool.QueryRow(ctx, `
		UPDATE signup_tokens
		SET claim_id = $2, claim_expires_at = $4
		WHERE token_hash = $1
		  AND is_used = FALSE
		  AND expires_at >= $3
		  AND (claim_id IS NULL OR claim_expires_at < $3)
		RETURNING `+invitationColumns,
		hash, claimID, now, leaseUntil,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenUnavailable
		}
		return nil, fmt.Errorf("failed to claim invitation: %w", err)
	}
	return inv, nil
}

func (p *PostgresStore) CommitClaim(ctx context.Context, hash []byte, claimID string, now time.Time, usedBy uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE signup_tokens
		SET is_used = TRUE,
		    used_at = $3,
		    used_by = $4,
		    claim_id = NULL,
		    claim_expires_at = NULL
		WHERE token_hash = $1
		  AND claim_id = $2
		  AND is_used = FALSE
	`, hash, claimID, now, usedBy)
	if err != nil {
		return false, fmt.Errorf("failed to commit invitation claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) ReleaseClaim(ctx context.Context, hash []byte, claimID string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE signup_tokens
		SET claim_id = NULL, claim_expires_at = NULL
		WHERE token_hash = $1 AND claim_id = $2
	`, hash, claimID)
	if err != nil {
		return fmt.Errorf("failed to release invitation claim: %w", err)
	}
	return nil
}

func (p *PostgresStore) Rotate(ctx context.Context, id uuid.UUID, hash []byte, now time.Time) (*Invitation, error) {
	inv, err := scanInvitation(p.pool.QueryRow(ctx, `
		UPDATE signup_tokens
		SET token_hash = $2,
		    claim_id = NULL,
		    claim_expires_at = NULL
		WHERE id = $1
		  AND is_used = FALSE
		  AND expires_at >= $3
		  AND (claim_id IS NULL OR claim_expires_at < $3)
		RETURNING `+invitationColumns,
		id, hash, now,
	))
	if err == nil {
		return inv, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrDuplicateToken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to rotate invitation: %w", err)
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM signup_tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrTokenUnavailable
}

func (p *PostgresStore) List(ctx context.Context, filter ListFilter, now time.Time) ([]Invitation, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Email != "" {
		where = append(where, "email = "+arg(filter.Email))
	}
	if filter.CohortID != nil {
		where = append(where, "cohort_id = "+arg(*filter.CohortID))
	}
	switch filter.Status {
	case StatusUsed:
		where = append(where, "is_used = TRUE")
	case StatusExpired:
		where = append(where, "is_used = FALSE AND expires_at < "+arg(now))
	case StatusActive:
		where = append(where, "is_used = FALSE AND expires_at >= "+arg(now))
	}

	query := `SELECT ` + invitationColumns + ` FROM signup_tokens`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(filter.Limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var list []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		list = append(list, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return list, nil
}
