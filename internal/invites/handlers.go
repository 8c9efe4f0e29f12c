package invites

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type IssueRequest struct {
	Email        string     `json:"email"`
	CohortID     *uuid.UUID `json:"cohort_id,omitempty"`
	ValidityDays int        `json:"validity_days,omitempty"`
	Send         bool       `json:"send"`
}

// DispatchOutcome reports whether the sign-up email went out. It sits next
// to the created token so a failed send is visible to staff.
type DispatchOutcome struct {
	Requested  bool   `json:"requested"`
	Sent       bool   `json:"sent"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type IssueResponse struct {
	Invite    *Invitation     `json:"invite"`
	Token     string          `json:"token"`
	SignupURL string          `json:"signup_url"`
	Dispatch  DispatchOutcome `json:"dispatch"`
}

type DispatchRequest struct {
	Token string `json:"token"`
}

// CheckResponse never carries more than validity and the bound email.
type CheckResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
}

// HandleIssue handles POST /api/v1/invites
func HandleIssue(svc *Service, dispatcher *Dispatcher, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := auth.ActorID(ctx)

		var req IssueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		inv, err := svc.IssueToken(ctx, IssueParams{
			Email:        req.Email,
			CohortID:     req.CohortID,
			ValidityDays: req.ValidityDays,
			CreatedBy:    actor,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidEmail):
				apperrors.WriteValidationError(w, r, "email", "Invalid email address")
			case errors.Is(err, ErrInvalidValidity):
				apperrors.WriteValidationError(w, r, "validity_days", err.Error())
			case errors.Is(err, ErrCohortNotFound):
				apperrors.WriteValidationError(w, r, "cohort_id", "Cohort not found")
			case errors.Is(err, ErrStoreUnavailable):
				log.Error().Err(err).Msg("Failed to issue invitation")
				apperrors.WriteServiceUnavailable(w, r, "Invitation store unavailable")
			default:
				log.Error().Err(err).Msg("Failed to issue invitation")
				apperrors.WriteInternalError(w, r, "Failed to issue invitation")
			}
			return
		}

		if auditor != nil {
			if err := auditor.LogInviteIssued(ctx, actor, inv.ID, inv.Email, inv.CohortID); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		outcome := DispatchOutcome{Requested: req.Send}
		if req.Send {
			outcome = dispatchAndAudit(r, dispatcher, auditor, inv)
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, IssueResponse{
			Invite:    inv,
			Token:     inv.Token,
			SignupURL: dispatcher.SignupURL(inv.Token),
			Dispatch:  outcome,
		})
	}
}

// HandleList handles GET /api/v1/invites
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Email:  strings.TrimSpace(q.Get("email")),
			Status: Status(q.Get("status")),
		}

		if raw := q.Get("cohort_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				apperrors.WriteValidationError(w, r, "cohort_id", "Invalid cohort ID")
				return
			}
			filter.CohortID = &id
		}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				apperrors.WriteValidationError(w, r, "limit", "limit must be a positive integer")
				return
			}
			filter.Limit = n
		}

		list, err := svc.ListTokens(r.Context(), filter)
		if err != nil {
			if errors.Is(err, ErrInvalidStatus) {
				apperrors.WriteValidationError(w, r, "status", err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to list invitations")
			apperrors.WriteServiceUnavailable(w, r, "Invitation store unavailable")
			return
		}
		if list == nil {
			list = []Invitation{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": list,
		})
	}
}

// HandleDispatch handles POST /api/v1/invites/dispatch. The caller supplies
// the plaintext token since only its hash is stored.
func HandleDispatch(svc *Service, dispatcher *Dispatcher, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		token := strings.TrimSpace(req.Token)
		if token == "" {
			apperrors.WriteValidationError(w, r, "token", "Token is required")
			return
		}

		inv, err := svc.GetTokenData(ctx, token)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Invitation not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load invitation")
			apperrors.WriteServiceUnavailable(w, r, "Invitation store unavailable")
			return
		}
		if inv.Status != StatusActive {
			apperrors.WriteConflict(w, r, "Invitation is "+string(inv.Status))
			return
		}

		outcome := dispatchAndAudit(r, dispatcher, auditor, inv)
		if !outcome.Sent {
			apperrors.WriteBadGateway(w, r, "Failed to send invitation email")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invite":   inv,
			"dispatch": outcome,
		})
	}
}

// HandleRotate handles POST /api/v1/invites/{invite_id}/link and, with
// send set, POST /api/v1/invites/{invite_id}/dispatch. Only the token hash
// is stored, so staff get a fresh link and the previous one is revoked.
// A failed send is reported in the body alongside the new link.
func HandleRotate(svc *Service, dispatcher *Dispatcher, auditor *audit.Writer, send bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor := auth.ActorID(ctx)

		id, err := uuid.Parse(chi.URLParam(r, "invite_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
			return
		}

		inv, err := svc.RotateToken(ctx, id)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				apperrors.WriteNotFound(w, r, "Invitation not found")
			case errors.Is(err, ErrTokenUnavailable):
				apperrors.WriteConflict(w, r, "Invitation is used, expired or being redeemed")
			default:
				log.Error().Err(err).Str("invitation_id", id.String()).Msg("Failed to rotate invitation")
				apperrors.WriteServiceUnavailable(w, r, "Invitation store unavailable")
			}
			return
		}

		if auditor != nil {
			if err := auditor.LogInviteRotated(ctx, actor, inv.ID); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		outcome := DispatchOutcome{Requested: send}
		if send {
			outcome = dispatchAndAudit(r, dispatcher, auditor, inv)
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, IssueResponse{
			Invite:    inv,
			Token:     inv.Token,
			SignupURL: dispatcher.SignupURL(inv.Token),
			Dispatch:  outcome,
		})
	}
}

// HandleCheck handles GET /api/v1/invites/check?token=. Every outcome is a
// 200 so callers cannot tell unknown, used and expired tokens apart.
func HandleCheck(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := strings.TrimSpace(r.URL.Query().Get("token"))

		resp := CheckResponse{}
		if token != "" && svc.VerifyToken(ctx, token) {
			inv, err := svc.GetTokenData(ctx, token)
			if err == nil {
				resp = CheckResponse{Valid: true, Email: inv.Email}
			} else {
				log.Warn().Err(err).Msg("Invitation lookup failed after verification")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

func dispatchAndAudit(r *http.Request, dispatcher *Dispatcher, auditor *audit.Writer, inv *Invitation) DispatchOutcome {
	ctx := r.Context()
	actor := auth.ActorID(ctx)
	outcome := DispatchOutcome{Requested: true}

	result, err := dispatcher.Dispatch(ctx, inv)
	if err != nil {
		outcome.Error = err.Error()
		if auditor != nil {
			if err := auditor.LogInviteDispatchFailed(ctx, actor, inv.ID, outcome.Error); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}
		return outcome
	}

	outcome.Sent = true
	outcome.DeliveryID = result.DeliveryID
	if auditor != nil {
		if err := auditor.LogInviteDispatched(ctx, actor, inv.ID, result.DeliveryID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
	}
	return outcome
}
