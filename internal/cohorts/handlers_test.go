package cohorts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/cohorts"
	"github.com/aliuyar1234/traineeportal/internal/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newRouter(svc *cohorts.Service, sink *memstore.AuditSink) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/cohorts", cohorts.HandleCreate(svc, audit.NewWriter(sink)))
	r.Get("/api/v1/cohorts", cohorts.HandleList(svc))
	r.Get("/api/v1/cohorts/{cohort_id}", cohorts.HandleGet(svc))
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCohortHandlers_CreateGetList(t *testing.T) {
	svc := cohorts.NewService(memstore.NewCohorts())
	sink := &memstore.AuditSink{}
	h := newRouter(svc, sink)

	rec := do(h, http.MethodPost, "/api/v1/cohorts", `{"name":"  Spring 2026 ","kind":"bootcamp"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			Cohort cohorts.Cohort `json:"cohort"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, "Spring 2026", created.Data.Cohort.Name)
	require.Equal(t, []string{audit.EventCohortCreated}, sink.Actions())

	rec = do(h, http.MethodGet, "/api/v1/cohorts/"+created.Data.Cohort.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/cohorts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Spring 2026")

	rec = do(h, http.MethodPost, "/api/v1/cohorts", `{"name":"Spring 2026"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCohortHandlers_Errors(t *testing.T) {
	h := newRouter(cohorts.NewService(memstore.NewCohorts()), &memstore.AuditSink{})

	require.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/cohorts", `{"name":""}`).Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/cohorts", `{"name":"x","kind":"`+strings.Repeat("k", 51)+`"}`).Code)
	require.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/cohorts/not-a-uuid", "").Code)
	require.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/cohorts/00000000-0000-0000-0000-000000000001", "").Code)
}

func TestResolve_ByIDOrName(t *testing.T) {
	ctx := context.Background()
	svc := cohorts.NewService(memstore.NewCohorts())

	c, err := svc.Create(ctx, "C1", "")
	require.NoError(t, err)

	byName, err := svc.Resolve(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, c.ID, byName.ID)

	byID, err := svc.Resolve(ctx, c.ID.String())
	require.NoError(t, err)
	require.Equal(t, "C1", byID.Name)

	_, err = svc.Resolve(ctx, "missing")
	require.ErrorIs(t, err, cohorts.ErrNotFound)
}
