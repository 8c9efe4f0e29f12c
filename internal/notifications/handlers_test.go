package notifications_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/aliuyar1234/traineeportal/internal/memstore"
	"github.com/aliuyar1234/traineeportal/internal/notifications"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"error"`
}

func serveAs(t *testing.T, h http.Handler, actor uuid.UUID, method, target, body string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(auth.WithSession(req.Context(), actor, profiles.RoleStaff))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHandleSend_BroadcastsAndAudits(t *testing.T) {
	f := newFixture(t)
	sink := &memstore.AuditSink{}
	h := notifications.HandleSend(f.svc, audit.NewWriter(sink))
	actor := uuid.New()

	rec, env := serveAs(t, h, actor, http.MethodPost, "/api/v1/notifications",
		`{"title":"Welcome","message":"Kick-off at 9","group":"cohort","cohort_id":"`+f.cohortA.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Notification notifications.Notification `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Equal(t, notifications.GroupCohort, resp.Notification.Group)
	require.Equal(t, 2, resp.Notification.SentCount)
	require.Equal(t, actor, *resp.Notification.SentBy)
	require.Equal(t, []string{"ann@x.io", "bob@x.io"}, f.notifier.recipients())
	require.Equal(t, []string{audit.EventNotificationSent}, sink.Actions())
}

func TestHandleSend_Validation(t *testing.T) {
	f := newFixture(t)
	h := notifications.HandleSend(f.svc, nil)

	tests := []struct {
		body  string
		field string
	}{
		{`{"message":"m","group":"all"}`, "title"},
		{`{"title":"t","group":"all"}`, "message"},
		{`{"title":"t","message":"m","group":"batch"}`, "group"},
		{`{"title":"t","message":"m","group":"cohort"}`, "cohort_id"},
		{`{"title":"t","message":"m","group":"custom","recipient_ids":[]}`, "recipient_ids"},
	}
	for _, tt := range tests {
		rec, env := serveAs(t, h, uuid.New(), http.MethodPost, "/api/v1/notifications", tt.body)
		require.Equal(t, http.StatusBadRequest, rec.Code, tt.body)
		require.Equal(t, "validation_error", env.Error.Code, tt.body)
		require.Equal(t, tt.field, env.Error.Field, tt.body)
	}

	rec, env := serveAs(t, h, uuid.New(), http.MethodPost, "/api/v1/notifications", `{"title":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "bad_request", env.Error.Code)
	require.Empty(t, f.notifier.recipients())
}

func TestHandleList_DefaultsToCaller(t *testing.T) {
	f := newFixture(t)
	send := notifications.HandleSend(f.svc, nil)
	list := notifications.HandleList(f.svc)
	me, other := uuid.New(), uuid.New()

	for _, actor := range []uuid.UUID{me, other} {
		rec, _ := serveAs(t, send, actor, http.MethodPost, "/api/v1/notifications", `{"title":"t","message":"m","group":"staff"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	var resp struct {
		Notifications []notifications.Notification `json:"notifications"`
	}

	rec, env := serveAs(t, list, me, http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Notifications, 1)
	require.Equal(t, me, *resp.Notifications[0].SentBy)

	_, env = serveAs(t, list, me, http.MethodGet, "/api/v1/notifications?all=true", "")
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Notifications, 2)

	rec, env = serveAs(t, list, me, http.MethodGet, "/api/v1/notifications?limit=zero", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "limit", env.Error.Field)
}
