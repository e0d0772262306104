// internal/sender/memory.go
package sender

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MemorySender records sends in memory and deduplicates on the idempotency
// key, the same way the real provider does. Used in local/dev mode and in
// tests that assert exactly-once delivery across a crash-and-retry.
type MemorySender struct {
	mu        sync.Mutex
	delivered map[string]*Result // idempotency key -> first result
	sends     []Message

	// FailNext makes that many subsequent calls fail, for retry tests.
	FailNext int
}

func NewMemorySender() *MemorySender {
	return &MemorySender{delivered: make(map[string]*Result)}
}

func (s *MemorySender) Send(ctx context.Context, apiKey string, msg Message) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext > 0 {
		s.FailNext--
		return nil, &mockFailure{}
	}

	if msg.IdempotencyKey != "" {
		if res, ok := s.delivered[msg.IdempotencyKey]; ok {
			return res, nil // duplicate call, no second delivery
		}
	}

	res := &Result{MessageID: uuid.NewString(), HTTPStatus: http.StatusCreated}
	s.sends = append(s.sends, msg)
	if msg.IdempotencyKey != "" {
		s.delivered[msg.IdempotencyKey] = res
	}
	return res, nil
}

// Deliveries returns the messages actually delivered (duplicates excluded).
func (s *MemorySender) Deliveries() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sends))
	copy(out, s.sends)
	return out
}

type mockFailure struct{}

func (*mockFailure) Error() string { return "mock send failed" }

var _ Sender = (*MemorySender)(nil)
