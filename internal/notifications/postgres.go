package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, title, message, group_type, cohort_id, recipient_ids, recipient_count, sent_count, failed_count, sent_by, created_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.Title,
		&n.Message,
		&n.Group,
		&n.CohortID,
		&n.RecipientIDs,
		&n.RecipientCount,
		&n.SentCount,
		&n.FailedCount,
		&n.SentBy,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(n.RecipientIDs) == 0 {
		n.RecipientIDs = nil
	}
	return &n, nil
}

func (p *PostgresStore) Insert(ctx context.Context, n Notification) (*Notification, error) {
	recipientIDs := make([]string, len(n.RecipientIDs))
	for i, id := range n.RecipientIDs {
		recipientIDs[i] = id.String()
	}

	out, err := scanNotification(p.pool.QueryRow(ctx, `
		INSERT INTO notifications (title, message, group_type, cohort_id, recipient_ids, sent_by, created_at)
		VALUES ($1, $2, $3, $4, $5::uuid[], $6, $7)
		RETURNING `+notificationColumns,
		n.Title, n.Message, string(n.Group), n.CohortID, recipientIDs, n.SentBy, n.CreatedAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "notifications_cohort_id_fkey" {
			return nil, ErrCohortNotFound
		}
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) RecordDelivery(ctx context.Context, id uuid.UUID, recipients, sent, failed int) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE notifications
		SET recipient_count = $2, sent_count = $3, failed_count = $4
		WHERE id = $1
	`, id, recipients, sent, failed)
	if err != nil {
		return fmt.Errorf("failed to record notification delivery: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	args := []any{filter.Limit}
	if filter.SentBy != nil {
		query += ` WHERE sent_by = $2`
		args = append(args, *filter.SentBy)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return list, nil
}
