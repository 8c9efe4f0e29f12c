package cohorts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/aliuyar1234/traineeportal/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// HandleCreate handles POST /api/v1/cohorts
func HandleCreate(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		cohort, err := svc.Create(ctx, req.Name, req.Kind)
		if err != nil {
			switch {
			case errors.Is(err, validation.ErrNameRequired), errors.Is(err, validation.ErrNameTooLong):
				apperrors.WriteValidationError(w, r, "name", err.Error())
			case errors.Is(err, ErrKindTooLong):
				apperrors.WriteValidationError(w, r, "kind", err.Error())
			case errors.Is(err, ErrNameConflict):
				apperrors.WriteConflict(w, r, "Cohort name already exists")
			default:
				log.Error().Err(err).Msg("Failed to create cohort")
				apperrors.WriteInternalError(w, r, "Failed to create cohort")
			}
			return
		}

		if auditor != nil {
			if err := auditor.LogCohortCreated(ctx, auth.ActorID(ctx), cohort.ID, cohort.Name); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"cohort": cohort,
		})
	}
}

// HandleList handles GET /api/v1/cohorts
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list cohorts")
			apperrors.WriteInternalError(w, r, "Failed to list cohorts")
			return
		}
		if list == nil {
			list = []Cohort{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"cohorts": list,
		})
	}
}

// HandleGet handles GET /api/v1/cohorts/{cohort_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "cohort_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid cohort ID")
			return
		}

		cohort, err := svc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Cohort not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get cohort")
			apperrors.WriteInternalError(w, r, "Failed to get cohort")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"cohort": cohort,
		})
	}
}
