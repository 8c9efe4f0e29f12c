package invites

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"
	"time"

	"github.com/aliuyar1234/traineeportal/internal/notify"
	"github.com/rs/zerolog/log"
)

const (
	InvitationSubject = "Welcome! Complete Your Account Setup"
	SignupPath        = "/sign-up"
	expiryLayout      = "Monday, January 2, 2006 at 15:04 MST"
)

var ErrTokenRequired = errors.New("plaintext token required for dispatch")

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/invitation.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/invitation.txt.tmpl"))
)

// DispatchResult reports an accepted delivery.
type DispatchResult struct {
	DeliveryID string `json:"delivery_id"`
	Link       string `json:"-"`
}

// Dispatcher emails sign-up links. It never changes invitation state.
type Dispatcher struct {
	notifier notify.Notifier
	baseURL  string
	location *time.Location
}

func NewDispatcher(notifier notify.Notifier, baseURL string, location *time.Location) *Dispatcher {
	if location == nil {
		location = time.UTC
	}
	return &Dispatcher{notifier: notifier, baseURL: baseURL, location: location}
}

// SignupURL is the link a trainee follows to redeem token.
func (d *Dispatcher) SignupURL(token string) string {
	return d.baseURL + SignupPath + "?token=" + url.QueryEscape(token)
}

type templateData struct {
	Link    string
	Email   string
	Expires string
}

// Dispatch sends the sign-up link for inv to its bound email. Delivery
// failures wrap notify.ErrUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *Invitation) (*DispatchResult, error) {
	if inv.Token == "" {
		return nil, ErrTokenRequired
	}

	data := templateData{
		Link:    d.SignupURL(inv.Token),
		Email:   inv.Email,
		Expires: inv.ExpiresAt.In(d.location).Format(expiryLayout),
	}

	var htmlBody, textBody bytes.Buffer
	if err := htmlTemplate.Execute(&htmlBody, data); err != nil {
		return nil, fmt.Errorf("failed to render invitation html: %w", err)
	}
	if err := textTemplate.Execute(&textBody, data); err != nil {
		return nil, fmt.Errorf("failed to render invitation text: %w", err)
	}

	receipt, err := d.notifier.Send(ctx, notify.Message{
		To:           inv.Email,
		Subject:      InvitationSubject,
		HTML:         htmlBody.String(),
		Text:         textBody.String(),
		Kind:         notify.KindSignupInvitation,
		Link:         data.Link,
		ExpiresAt:    inv.ExpiresAt,
		ExpiresLabel: data.Expires,
	})
	if err != nil {
		log.Warn().
			Err(err).
			Str("invitation_id", inv.ID.String()).
			Str("notifier", d.notifier.Name()).
			Msg("Invitation dispatch failed")
		if !errors.Is(err, notify.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", notify.ErrUnavailable, err)
		}
		return nil, err
	}

	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("notifier", d.notifier.Name()).
		Str("delivery_id", receipt.DeliveryID).
		Msg("Invitation dispatched")

	return &DispatchResult{DeliveryID: receipt.DeliveryID, Link: data.Link}, nil
}
