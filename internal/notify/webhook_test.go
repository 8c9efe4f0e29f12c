package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		To:           "a@x.io",
		Subject:      "Welcome! Complete Your Account Setup",
		HTML:         "<p>hi</p>",
		Text:         "hi",
		Kind:         KindSignupInvitation,
		Link:         "https://portal.example/sign-up?token=tpi_abc",
		ExpiresLabel: "Friday, January 2, 2026",
	}
}

func TestWebhookNotifier_Success(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"id":"msg_123"}`))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "s3cret", time.Second)
	receipt, err := n.Send(context.Background(), testMessage())
	require.NoError(t, err)

	require.Equal(t, "msg_123", receipt.DeliveryID)
	require.Equal(t, "Bearer s3cret", auth)
	require.Equal(t, "a@x.io", got.To)
	require.Equal(t, KindSignupInvitation, got.Type)
	require.Equal(t, "https://portal.example/sign-up?token=tpi_abc", got.SignupLink)
	require.Equal(t, "Friday, January 2, 2026", got.ExpirationDate)
}

func TestWebhookNotifier_RejectedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"RESEND_API_KEY environment variable is not set"}`))
	}))
	defer srv.Close()

	_, err := NewWebhookNotifier(srv.URL, "", time.Second).Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "RESEND_API_KEY")
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWebhookNotifier(srv.URL, "", time.Second).Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "502")
}

func TestWebhookNotifier_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewWebhookNotifier(srv.URL, "", 50*time.Millisecond).Send(context.Background(), testMessage())
	require.ErrorIs(t, err, ErrUnavailable)
}
