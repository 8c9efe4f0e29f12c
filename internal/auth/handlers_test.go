package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aliuyar1234/traineeportal/internal/audit"
	"github.com/aliuyar1234/traineeportal/internal/auth"
	"github.com/aliuyar1234/traineeportal/internal/identity"
	"github.com/aliuyar1234/traineeportal/internal/memstore"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func seedAccount(t *testing.T, role profiles.Role) (*identity.Service, *memstore.Profiles, uuid.UUID) {
	t.Helper()
	idents := identity.NewService(memstore.NewIdentities(), bcrypt.MinCost)
	profileStore := memstore.NewProfiles()

	ident, err := idents.CreateIdentity(context.Background(), "coach@x.com", "Correct horse")
	require.NoError(t, err)
	_, err = profileStore.Insert(context.Background(), profiles.Profile{
		IdentityID: ident.ID,
		Email:      ident.Email,
		FirstName:  "Casey",
		LastName:   "Coach",
		Role:       role,
	})
	require.NoError(t, err)
	return idents, profileStore, ident.ID
}

func postLogin(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleLogin_SetsSessionWithRole(t *testing.T) {
	idents, profileStore, userID := seedAccount(t, profiles.RoleStaff)
	sink := &memstore.AuditSink{}
	h := auth.HandleLogin(idents, profileStore, audit.NewWriter(sink), auth.SessionConfig{Secret: testSecret, SessionDays: 7})

	rec := postLogin(h, `{"email":"coach@x.com","password":"Correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	require.True(t, session.HttpOnly)

	claims, err := auth.ValidateToken(session.Value, testSecret)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "staff", claims.Role)
	require.Equal(t, []string{audit.EventLogin}, sink.Actions())
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	idents, profileStore, _ := seedAccount(t, profiles.RoleTrainee)
	sink := &memstore.AuditSink{}
	h := auth.HandleLogin(idents, profileStore, audit.NewWriter(sink), auth.SessionConfig{Secret: testSecret, SessionDays: 7})

	for _, body := range []string{
		`{"email":"coach@x.com","password":"wrong password"}`,
		`{"email":"nobody@x.com","password":"Correct horse"}`,
	} {
		rec := postLogin(h, body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Empty(t, rec.Result().Cookies())
	}
	require.Equal(t, []string{audit.EventLoginFailed, audit.EventLoginFailed}, sink.Actions())
}

func TestHandleLogin_MissingProfile(t *testing.T) {
	idents := identity.NewService(memstore.NewIdentities(), bcrypt.MinCost)
	_, err := idents.CreateIdentity(context.Background(), "orphan@x.com", "Correct horse")
	require.NoError(t, err)

	h := auth.HandleLogin(idents, memstore.NewProfiles(), nil, auth.SessionConfig{Secret: testSecret, SessionDays: 7})
	rec := postLogin(h, `{"email":"orphan@x.com","password":"Correct horse"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireStaff(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw := auth.AuthMiddleware(testSecret, false)(auth.RequireStaff(ok))

	tests := []struct {
		name string
		role string
		want int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"trainee", "trainee", http.StatusForbidden},
		{"staff", "staff", http.StatusNoContent},
		{"admin", "admin", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/invites", nil)
			if tt.role != "" {
				token, err := auth.CreateToken(uuid.New(), tt.role, testSecret, 1)
				require.NoError(t, err)
				req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestValidateCSRF(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", nil)
	require.Error(t, auth.ValidateCSRF(req))

	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: "abc"})
	require.Error(t, auth.ValidateCSRF(req))

	req.Header.Set(auth.CSRFHeaderName, "abd")
	require.Error(t, auth.ValidateCSRF(req))

	req.Header.Set(auth.CSRFHeaderName, "abc")
	require.NoError(t, auth.ValidateCSRF(req))
}

func TestHandleCSRFToken_ReusesCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf", nil)
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: "existing"})
	rec := httptest.NewRecorder()
	auth.HandleCSRFToken(false).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "existing", body.Data["csrf_token"])
}
