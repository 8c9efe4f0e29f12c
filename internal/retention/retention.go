// Package retention prunes aged audit history on a schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DeleteOldAuditEntries removes audit_log rows older than retentionDays.
// Invitations and accounts are never touched. Safe to run repeatedly.
func DeleteOldAuditEntries(ctx context.Context, db Execer, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be positive (got %d)", retentionDays)
	}

	tag, err := db.Exec(ctx, `
		DELETE FROM audit_log
		WHERE created_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit entries: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob executes the retention pass and logs the result.
func RunRetentionJob(ctx context.Context, db Execer, auditDays int) error {
	log.Info().Int("audit_retention_days", auditDays).Msg("Starting retention job")
	startTime := time.Now()

	deleted, err := DeleteOldAuditEntries(ctx, db, auditDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old audit entries")
		return err
	}

	log.Info().
		Int64("audit_entries_deleted", deleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}

// NewScheduler registers the daily retention job (every minute when dev is
// set) on a UTC cron. The caller starts and stops it.
func NewScheduler(db Execer, auditDays int, dev bool) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	schedule := "0 3 * * *"
	if dev {
		schedule = "* * * * *"
	}

	_, err := c.AddFunc(schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Retention job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := RunRetentionJob(ctx, db, auditDays); err != nil {
			log.Error().Err(err).Msg("Retention job failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	return c, nil
}
