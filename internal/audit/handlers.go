package audit

import (
	"net/http"
	"strconv"

	"github.com/aliuyar1234/traineeportal/internal/apperrors"
	"github.com/rs/zerolog/log"
)

// HandleList handles GET /api/v1/audit?action=&limit=
func HandleList(reader *Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				apperrors.WriteValidationError(w, r, "limit", "limit must be a positive integer")
				return
			}
			limit = n
		}

		items, err := reader.List(r.Context(), q.Get("action"), limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}
		if items == nil {
			items = []ListItem{}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"entries": items,
		})
	}
}
