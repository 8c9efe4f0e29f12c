package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SendRequest struct {
	Title        string      `json:"title"`
	Message      string      `json:"message"`
	Group        Group       `json:"group"`
	CohortID     *uuid.UUID  `json:"cohort_id,omitempty"`
	RecipientIDs []uuid.UUID `json:"recipient_ids,omitempty"`
}

// HandleSend handles POST /api/v1/notifications
func HandleSend(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := auth.ActorID(ctx)

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		n, err := svc.Send(ctx, SendParams{
			Title:        req.Title,
			Message:      req.Message,
			Group:        req.Group,
			CohortID:     req.CohortID,
			RecipientIDs: req.RecipientIDs,
			SentBy:       actor,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrTitleRequired), errors.Is(err, ErrTitleTooLong):
				apperrors.WriteValidationError(w, r, "title", err.Error())
			case errors.Is(err, ErrMessageRequired), errors.Is(err, ErrMessageTooLong):
				apperrors.WriteValidationError(w, r, "message", err.Error())
			case errors.Is(err, ErrInvalidGroup):
				apperrors.WriteValidationError(w, r, "group", err.Error())
			case errors.Is(err, ErrCohortRequired):
				apperrors.WriteValidationError(w, r, "cohort_id", err.Error())
			case errors.Is(err, ErrCohortNotFound):
				apperrors.WriteValidationError(w, r, "cohort_id", "Cohort not found")
			case errors.Is(err, ErrRecipientsRequired):
				apperrors.WriteValidationError(w, r, "recipient_ids", err.Error())
			case errors.Is(err, ErrStoreUnavailable):
				log.Error().Err(err).Msg("Failed to send notification")
				apperrors.WriteServiceUnavailable(w, r, "Notification store unavailable")
			default:
				log.Error().Err(err).Msg("Failed to send notification")
				apperrors.WriteInternalError(w, r, "Failed to send notification")
			}
			return
		}

		if auditor != nil {
			if err := auditor.LogNotificationSent(ctx, actor, n.ID, string(n.Group), n.RecipientCount, n.FailedCount); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"notification": n,
		})
	}
}

// HandleList handles GET /api/v1/notifications. It lists what the caller
// sent unless all=true.
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := ListFilter{}
		if q.Get("all") != "true" {
			filter.SentBy = auth.ActorID(r.Context())
		}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				apperrors.WriteValidationError(w, r, "limit", "limit must be a positive integer")
				return
			}
			filter.Limit = n
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list notifications")
			apperrors.WriteServiceUnavailable(w, r, "Notification store unavailable")
			return
		}
		if list == nil {
			list = []Notification{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"notifications": list,
		})
	}
}
