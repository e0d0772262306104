// internal/sender/brevo.go
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
)

const defaultBrevoBaseURL = "https://api.brevo.com/v3"

// BrevoSender talks to the Brevo transactional API. The per-attempt timeout
// lives on the context the dispatcher passes in; the client timeout here is
// just a backstop.
type BrevoSender struct {
	BaseURL string
	Client  *http.Client
}

func NewBrevoSender(baseURL string) *BrevoSender {
	if baseURL == "" {
		baseURL = defaultBrevoBaseURL
	}
	return &BrevoSender{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type brevoEmailRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

func (s *BrevoSender) Send(ctx context.Context, apiKey string, msg Message) (*Result, error) {
	payload := brevoEmailRequest{
		Sender:      brevoContact{Email: msg.SenderEmail, Name: msg.SenderName},
		To:          toContacts(msg.To),
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", apiKey)
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &appErrors.SendError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &appErrors.SendError{
			HTTPStatus: resp.StatusCode,
			Reason:     fmt.Sprintf("provider rejected send: %s", bytes.TrimSpace(raw)),
		}
	}

	var out brevoEmailResponse
	_ = json.Unmarshal(raw, &out)

	return &Result{MessageID: out.MessageID, HTTPStatus: resp.StatusCode}, nil
}

func toContacts(recipients []model.Recipient) []brevoContact {
	contacts := make([]brevoContact, len(recipients))
	for i, r := range recipients {
		contacts[i] = brevoContact{Email: r.Email, Name: r.Name}
	}
	return contacts
}

var _ Sender = (*BrevoSender)(nil)
