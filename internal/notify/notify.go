// Package notify delivers outbound messages through a pluggable backend.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every delivery failure.
var ErrUnavailable = errors.New("notifier unavailable")

// Kinds tag messages for backends that template on their own side.
const (
	KindSignupInvitation  = "signup-invitation"
	KindStaffNotification = "staff-notification"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string

	Kind      string
	Link      string
	ExpiresAt time.Time
	// ExpiresLabel is ExpiresAt formatted for humans.
	ExpiresLabel string
}

// Receipt identifies an accepted delivery.
type Receipt struct {
	DeliveryID string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
	Name() string
}

type timeoutNotifier struct {
	Notifier
	timeout time.Duration
}

// WithTimeout bounds every Send on n to d.
func WithTimeout(n Notifier, d time.Duration) Notifier {
	if d <= 0 {
		return n
	}
	return &timeoutNotifier{Notifier: n, timeout: d}
}

func (t *timeoutNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Notifier.Send(ctx, msg)
}
