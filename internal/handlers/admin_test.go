package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/messenger"
	"github.com/memohai/chatgate/internal/channel/adapters/telegram"
	"github.com/memohai/chatgate/internal/handlers"
	channelchecker "github.com/memohai/chatgate/internal/healthcheck/checkers/channel"
	"github.com/memohai/chatgate/internal/server"
)

const adminSecret = "admin-secret"

type fakeTelegramAdmin struct {
	mu      sync.Mutex
	urls    []string
	deleted int
	err     error
}

func (f *fakeTelegramAdmin) SetWebhook(_ context.Context, _ bots.BotConfig, webhookURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, webhookURL)
	return f.err
}

func (f *fakeTelegramAdmin) DeleteWebhook(context.Context, bots.BotConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return f.err
}

func (f *fakeTelegramAdmin) BotInfo(_ context.Context, bot bots.BotConfig) (telegram.BotInfo, error) {
	return telegram.BotInfo{ID: 7, Username: bot.Telegram.BotUsername}, f.err
}

type adminEnv struct {
	*testEnv
	srv      *server.Server
	telegram *fakeTelegramAdmin
	tokens   *cache.Tokens
}

func newAdminEnv(t *testing.T, baseURL string) *adminEnv {
	t.Helper()
	bot := pageBot()
	bot.Telegram = bots.TelegramBinding{Enabled: true, BotToken: "123:abc", BotUsername: "shop_bot"}
	env := newTestEnv(t, bot)
	a := &adminEnv{testEnv: env, telegram: &fakeTelegramAdmin{}, tokens: cache.NewTokens(time.Minute)}
	admin := handlers.NewAdminHandler(nil, handlers.AdminOptions{
		Settings:      env.settings,
		Knowledge:     env.contexts,
		Tokens:        a.tokens,
		Resolver:      env.resolver,
		Checker:       channelchecker.NewChecker(nil, env.store, env.registry),
		Telegram:      a.telegram,
		Messenger:     messenger.NewMessengerAdapter(nil, env.graph.srv.Client(), env.graph.srv.URL),
		PublicBaseURL: baseURL,
		JWTSecret:     adminSecret,
		JWTExpiresIn:  time.Hour,
	})
	a.srv = server.NewServer(nil, ":0", adminSecret, admin)
	return a
}

func (a *adminEnv) call(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := auth.GenerateToken("ops", adminSecret, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestAdminClearCache(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example")
	_, err := a.resolver.Lookup(context.Background(), channel.ChannelMessenger, "b1")
	require.NoError(t, err)

	rec := a.call(t, http.MethodPost, "/api/admin/clear-cache", `{"botId":"b1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "Cache cleared for bot b1", body["message"])
	assert.Contains(t, rec.Body.String(), `"channel":"messenger","botId":"b1","cleared":1`)
	assert.Contains(t, rec.Body.String(), `"channel":"knowledge"`)

	rec = a.call(t, http.MethodPost, "/api/admin/clear-cache", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "All caches cleared", decodeJSON(t, rec)["message"])
	assert.Contains(t, rec.Body.String(), `"channel":"tokens"`)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example")
	rec := httptest.NewRecorder()
	a.srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/clear-cache", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminBotChecks(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example")
	rec := a.call(t, http.MethodGet, "/api/admin/bots/b1/checks", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "b1", body["botId"])
	assert.Contains(t, rec.Body.String(), "channel.binding.messenger")
	assert.Contains(t, rec.Body.String(), "channel.binding.zalo")
}

func TestAdminRefreshToken(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example")
	rec := a.call(t, http.MethodPost, "/api/admin/token/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["expiresAt"])
}

func TestAdminTelegramWebhook(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example/")
	rec := a.call(t, http.MethodPost, "/api/admin/telegram/set-webhook", `{"botId":"b1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://gw.example/api/telegram/webhook?botId=b1", decodeJSON(t, rec)["webhookUrl"])
	assert.Equal(t, []string{"https://gw.example/api/telegram/webhook?botId=b1"}, a.telegram.urls)

	rec = a.call(t, http.MethodPost, "/api/admin/telegram/delete-webhook", `{"botId":"b1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, a.telegram.deleted)

	rec = a.call(t, http.MethodGet, "/api/admin/telegram/bot-info?botId=b1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "shop_bot", decodeJSON(t, rec)["username"])
}

func TestAdminTelegramErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		baseURL string
		body    string
		upErr   error
		status  int
	}{
		{name: "missing bot id", baseURL: "https://gw.example", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown bot", baseURL: "https://gw.example", body: `{"botId":"nope"}`, status: http.StatusNotFound},
		{name: "plain http base url", baseURL: "http://gw.example", body: `{"botId":"b1"}`, status: http.StatusBadRequest},
		{name: "upstream failure", baseURL: "https://gw.example", body: `{"botId":"b1"}`, upErr: errors.New("Unauthorized"), status: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newAdminEnv(t, tc.baseURL)
			a.telegram.err = tc.upErr
			rec := a.call(t, http.MethodPost, "/api/admin/telegram/set-webhook", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminMessengerPageInfo(t *testing.T) {
	t.Parallel()

	a := newAdminEnv(t, "https://gw.example")
	rec := a.call(t, http.MethodGet, "/api/admin/messenger/page-info?botId=b1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeJSON(t, rec)
	assert.Equal(t, "P1", body["id"])
	assert.Equal(t, "Shop Page", body["name"])

	rec = a.call(t, http.MethodGet, "/api/admin/zalo/oa-info?botId=b1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
