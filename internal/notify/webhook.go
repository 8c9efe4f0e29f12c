package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookNotifier posts messages as JSON to an HTTP endpoint, typically an
// edge function that relays to an email provider.
type WebhookNotifier struct {
	httpClient *http.Client
	url        string
	secret     string
	timeout    time.Duration
}

func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		secret:     secret,
		timeout:    timeout,
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Type           string `json:"type,omitempty"`
	SignupLink     string `json:"signupLink,omitempty"`
	ExpirationDate string `json:"expirationDate,omitempty"`
	HTML           string `json:"html"`
	Text           string `json:"text"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ID      string `json:"id"`
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	body, err := json.Marshal(webhookPayload{
		To:             msg.To,
		Subject:        msg.Subject,
		Type:           msg.Kind,
		SignupLink:     msg.Link,
		ExpirationDate: msg.ExpiresLabel,
		HTML:           msg.HTML,
		Text:           msg.Text,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to marshal payload: %w", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("Authorization", "Bearer "+n.secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Dur("timeout", n.timeout).Msg("Email webhook timed out")
		} else {
			log.Warn().Err(err).Msg("Failed to call email webhook")
		}
		return Receipt{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status_code", resp.StatusCode).Msg("Email webhook returned error status")
		return Receipt{}, fmt.Errorf("%w: webhook returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var out webhookResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Warn().Err(err).Msg("Email webhook returned malformed body")
		return Receipt{}, fmt.Errorf("%w: malformed webhook response: %w", ErrUnavailable, err)
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "unknown error"
		}
		log.Warn().Str("reason", reason).Msg("Email webhook rejected message")
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnavailable, reason)
	}

	log.Info().Str("delivery_id", out.ID).Msg("Email accepted by webhook")
	return Receipt{DeliveryID: out.ID}, nil
}
