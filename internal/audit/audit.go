package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

const (
	EventInviteIssued         = "invite.issued"
	EventInviteDispatched     = "invite.dispatched"
	EventInviteDispatchFailed = "invite.dispatch_failed"
	EventInviteRotated        = "invite.rotated"
	EventUserRegistered       = "user.registered"
	EventSignupPartialFailure = "signup.partial_failure"
	EventLogin                = "auth.login"
	EventLoginFailed          = "auth.login_failed"
	EventCohortCreated        = "cohort.created"
	EventStaffCreated         = "staff.created"
	EventPasswordReset        = "auth.password_reset"
	EventProfileRepaired      = "profile.repaired"
	EventNotificationSent     = "notification.sent"
)

// Execer is the subset of pgxpool.Pool the writer needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer appends audit log entries.
type Writer struct {
	db Execer
}

func NewWriter(db Execer) *Writer {
	return &Writer{db: db}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	_, err := w.db.Exec(ctx, `
		INSERT INTO audit_log (actor_user_id, action, meta)
		VALUES ($1, $2, $3)
	`, toNullUUID(params.ActorUserID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Debug().
		Str("action", params.Action).
		Interface("actor_user_id", params.ActorUserID).
		Msg("Audit event logged")
	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil || *id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogInviteIssued(ctx context.Context, actorUserID *uuid.UUID, inviteID uuid.UUID, email string, cohortID *uuid.UUID) error {
	meta := map[string]any{
		"invite_id": inviteID.String(),
		"email":     email,
	}
	if cohortID != nil {
		meta["cohort_id"] = cohortID.String()
	}
	return w.Log(ctx, LogParams{ActorUserID: actorUserID, Action: EventInviteIssued, Meta: meta})
}

func (w *Writer) LogInviteDispatched(ctx context.Context, actorUserID *uuid.UUID, inviteID uuid.UUID, deliveryID string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventInviteDispatched,
		Meta: map[string]any{
			"invite_id":   inviteID.String(),
			"delivery_id": deliveryID,
		},
	})
}

func (w *Writer) LogInviteDispatchFailed(ctx context.Context, actorUserID *uuid.UUID, inviteID uuid.UUID, reason string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventInviteDispatchFailed,
		Meta: map[string]any{
			"invite_id": inviteID.String(),
			"error":     reason,
		},
	})
}

func (w *Writer) LogInviteRotated(ctx context.Context, actorUserID *uuid.UUID, inviteID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventInviteRotated,
		Meta:        map[string]any{"invite_id": inviteID.String()},
	})
}

func (w *Writer) LogUserRegistered(ctx context.Context, userID, inviteID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserRegistered,
		Meta: map[string]any{
			"invite_id": inviteID.String(),
			"email":     email,
		},
	})
}

func (w *Writer) LogSignupPartialFailure(ctx context.Context, userID, inviteID uuid.UUID, stage, reason string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventSignupPartialFailure,
		Meta: map[string]any{
			"invite_id": inviteID.String(),
			"stage":     stage,
			"error":     reason,
		},
	})
}

func (w *Writer) LogLogin(ctx context.Context, userID uuid.UUID, ip string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventLogin,
		Meta:        map[string]any{"ip": ip},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]any{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogCohortCreated(ctx context.Context, actorUserID *uuid.UUID, cohortID uuid.UUID, name string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventCohortCreated,
		Meta: map[string]any{
			"cohort_id": cohortID.String(),
			"name":      name,
		},
	})
}

func (w *Writer) LogStaffCreated(ctx context.Context, userID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		Action: EventStaffCreated,
		Meta: map[string]any{
			"user_id": userID.String(),
			"email":   email,
			"role":    role,
		},
	})
}

func (w *Writer) LogPasswordReset(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		Action: EventPasswordReset,
		Meta:   map[string]any{"user_id": userID.String()},
	})
}

func (w *Writer) LogProfileRepaired(ctx context.Context, userID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		Action: EventProfileRepaired,
		Meta:   map[string]any{"user_id": userID.String()},
	})
}

func (w *Writer) LogNotificationSent(ctx context.Context, actorUserID *uuid.UUID, notificationID uuid.UUID, group string, recipients, failed int) error {
	return w.Log(ctx, LogParams{
		ActorUserID: actorUserID,
		Action:      EventNotificationSent,
		Meta: map[string]any{
			"notification_id": notificationID.String(),
			"group":           group,
			"recipients":      recipients,
			"failed":          failed,
		},
	})
}
