package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	}, zap.NewNop())
}

func TestClientChat(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(completionBody("  Not on the list.  ")))
	})

	reply, err := client.Chat(context.Background(), ChatRequest{
		Model:       "doorman-small",
		Messages:    []ChatMessage{{Role: "user", Content: "hey"}},
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Not on the list.", reply)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "doorman-small", gotReq.Model)
	assert.InDelta(t, 0.7, gotReq.Temperature, 1e-9)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(completionBody("ok")))
		}
	})

	reply, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 3, calls)
}

func TestClientDoesNotRetryBadRequests(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad model"}}`))
	})

	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClientRetriesEmptyChoices(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"choices": []}`))
			return
		}
		w.Write([]byte(completionBody("second try")))
	})

	reply, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "second try", reply)
}

func TestClientExhaustsRetries(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second}, zap.NewNop())
	_, err := client.Chat(context.Background(), ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestClientHonorsCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Chat(ctx, ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, context.Canceled)
}
