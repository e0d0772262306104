// internal/sender/sender.go
package sender

import (
	"context"

	"github.com/mailkite/campaign-engine/internal/model"
)

// Message is one outbound transactional send.
type Message struct {
	SenderEmail    string
	SenderName     string
	To             []model.Recipient
	Subject        string
	HTML           string
	IdempotencyKey string
}

// Result is the provider's acknowledgement of an accepted send.
type Result struct {
	MessageID  string
	HTTPStatus int
}

// Sender is the external transactional-email provider. Implementations must
// honor the idempotency key: a duplicate call with the same key must not
// create a duplicate delivery.
type Sender interface {
	Send(ctx context.Context, apiKey string, msg Message) (*Result, error)
}
