package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
)

func testMessage() Message {
	return Message{
		SenderEmail:    "news@acme.example",
		SenderName:     "Acme",
		To:             []model.Recipient{{Email: "user@acme.example", Name: "User"}},
		Subject:        "Hello",
		HTML:           "<p>Hi</p>",
		IdempotencyKey: "idem-1",
	}
}

func TestBrevoSendSuccess(t *testing.T) {
	var gotReq brevoEmailRequest
	var gotAPIKey, gotIdemKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/smtp/email", r.URL.Path)
		gotAPIKey = r.Header.Get("api-key")
		gotIdemKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"messageId": "<msg-42@brevo>"})
	}))
	defer srv.Close()

	s := NewBrevoSender(srv.URL)
	res, err := s.Send(context.Background(), "xkeysib-test", testMessage())
	require.NoError(t, err)

	assert.Equal(t, "<msg-42@brevo>", res.MessageID)
	assert.Equal(t, http.StatusCreated, res.HTTPStatus)
	assert.Equal(t, "xkeysib-test", gotAPIKey)
	assert.Equal(t, "idem-1", gotIdemKey)
	assert.Equal(t, "news@acme.example", gotReq.Sender.Email)
	require.Len(t, gotReq.To, 1)
	assert.Equal(t, "user@acme.example", gotReq.To[0].Email)
	assert.Equal(t, "<p>Hi</p>", gotReq.HTMLContent)
}

func TestBrevoSendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthorized"}`))
	}))
	defer srv.Close()

	s := NewBrevoSender(srv.URL)
	_, err := s.Send(context.Background(), "bad-key", testMessage())

	var sendErr *appErrors.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, http.StatusUnauthorized, sendErr.HTTPStatus)
	assert.Contains(t, sendErr.Reason, "unauthorized")
}

func TestBrevoSendRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewBrevoSender(srv.URL)
	_, err := s.Send(ctx, "key", testMessage())
	require.Error(t, err)
}

func TestMemorySenderDeduplicates(t *testing.T) {
	s := NewMemorySender()
	ctx := context.Background()
	msg := testMessage()

	first, err := s.Send(ctx, "key", msg)
	require.NoError(t, err)
	second, err := s.Send(ctx, "key", msg)
	require.NoError(t, err)

	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Len(t, s.Deliveries(), 1)
}

func TestMemorySenderFailNext(t *testing.T) {
	s := NewMemorySender()
	s.FailNext = 1
	ctx := context.Background()

	_, err := s.Send(ctx, "key", testMessage())
	require.Error(t, err)

	_, err = s.Send(ctx, "key", testMessage())
	require.NoError(t, err)
	assert.Len(t, s.Deliveries(), 1)
}
