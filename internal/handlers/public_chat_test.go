package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/memohai/chatgate/internal/handlers"
)

func newChatEnv(t *testing.T, rateLimiter *limiter.Limiter) *testEnv {
	t.Helper()
	env := newTestEnv(t, pageBot())
	handlers.NewPublicChatHandler(nil, env.gw, rateLimiter, 0).Register(env.e)
	return env
}

func postChat(env *testEnv, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/public/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://shop.example")
	return env.do(req)
}

func TestPublicChatReplies(t *testing.T) {
	t.Parallel()

	env := newChatEnv(t, nil)
	rec := postChat(env, `{"botId":"b1","message":"What are your hours?","sessionId":"s-1"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "We are open 9-5.", decodeJSON(t, rec)["reply"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	env.drain(t)
	records := env.records.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "web", records[0].Channel)
	assert.Equal(t, "s-1", records[0].SessionID)
}

func TestPublicChatPreflight(t *testing.T) {
	t.Parallel()

	env := newChatEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/public/chat", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := env.do(req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestPublicChatErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     string
		provider error
		status   int
		message  string
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest, message: "Invalid request body"},
		{name: "missing message", body: `{"botId":"b1"}`, status: http.StatusBadRequest, message: "Bot ID and message are required"},
		{name: "message too long", body: `{"botId":"b1","message":"` + strings.Repeat("a", 4001) + `"}`, status: http.StatusBadRequest, message: "Message is too long"},
		{name: "unknown bot", body: `{"botId":"nope","message":"hi?"}`, status: http.StatusNotFound, message: "Bot not found"},
		{name: "provider timeout", body: `{"botId":"b1","message":"question"}`, provider: context.DeadlineExceeded, status: http.StatusGatewayTimeout, message: "Request timeout. Please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newChatEnv(t, nil)
			env.completer.err = tc.provider
			rec := postChat(env, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.message, decodeJSON(t, rec)["error"])
		})
	}
}

func TestPublicChatRateLimited(t *testing.T) {
	t.Parallel()

	rl := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 1})
	env := newChatEnv(t, rl)

	first := postChat(env, `{"botId":"b1","message":"question"}`)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := postChat(env, `{"botId":"b1","message":"question"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "Too many requests. Please try again later.", decodeJSON(t, second)["error"])
	assert.Equal(t, 1, env.completer.calls)
}
