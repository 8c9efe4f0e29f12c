package notify

import (
	"context"

	"github.com/aliuyar1234/traineeportal/internal/ids"
	"github.com/rs/zerolog/log"
)

// LogNotifier writes messages to the application log instead of sending
// them. Used in development.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	receipt := Receipt{DeliveryID: ids.New()}

	log.Info().
		Str("delivery_id", receipt.DeliveryID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("link", msg.Link).
		Str("expires", msg.ExpiresLabel).
		Msg("Email not sent (log notifier)")

	return receipt, nil
}
