package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/messenger"
	"github.com/memohai/chatgate/internal/channel/adapters/telegram"
	"github.com/memohai/chatgate/internal/channel/adapters/web"
	"github.com/memohai/chatgate/internal/channel/adapters/zalo"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/dispatch"
	"github.com/memohai/chatgate/internal/gateway"
	"github.com/memohai/chatgate/internal/knowledge"
	"github.com/memohai/chatgate/internal/tracking"
)

type stubCompleter struct {
	mu    sync.Mutex
	calls int
	last  chat.CompletionRequest
	reply string
	err   error
}

func (c *stubCompleter) Complete(_ context.Context, req chat.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = req
	return c.reply, c.err
}

func (c *stubCompleter) lastRequest() chat.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// graphServer records Messenger sends.
type graphServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	g := &graphServer{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.bodies = append(g.bodies, r.URL.Path+" "+string(raw))
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/me" {
			_, _ = w.Write([]byte(`{"id":"P1","name":"Shop Page"}`))
			return
		}
		_, _ = w.Write([]byte(`{"recipient_id":"U1","message_id":"m1"}`))
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *graphServer) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.bodies...)
}

// botAPIServer answers Telegram Bot API calls and records sendMessage forms.
type botAPIServer struct {
	mu    sync.Mutex
	sends []url.Values
	srv   *httptest.Server
}

func newBotAPIServer(t *testing.T) *botAPIServer {
	t.Helper()
	b := &botAPIServer{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Shop","username":"shop_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			b.mu.Lock()
			b.sends = append(b.sends, r.PostForm)
			b.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"private"},"date":0}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botAPIServer) sent() []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.sends...)
}

type testEnv struct {
	e          *echo.Echo
	gw         *gateway.Gateway
	registry   *channel.Registry
	resolver   *channel.Resolver
	store      *bots.MemoryStore
	settings   *cache.Settings
	contexts   *knowledge.ContextCache
	completer  *stubCompleter
	graph      *graphServer
	botAPI     *botAPIServer
	dispatcher *dispatch.Dispatcher
	tracker    *tracking.Tracker
	records    *tracking.MemoryStore
}

func newTestEnv(t *testing.T, items ...bots.BotConfig) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		e:         echo.New(),
		store:     bots.NewMemoryStore(items...),
		settings:  cache.NewSettings(time.Minute, nil),
		completer: &stubCompleter{reply: "We are open 9-5."},
		graph:     newGraphServer(t),
		botAPI:    newBotAPIServer(t),
		records:   tracking.NewMemoryStore(),
	}
	reg, err := channel.NewRegistry(
		messenger.NewMessengerAdapter(log, env.graph.srv.Client(), env.graph.srv.URL),
		zalo.NewZaloAdapter(log, zalo.Options{APIBaseURL: env.graph.srv.URL}),
		telegram.NewTelegramAdapter(log, telegram.WithAPIEndpoint(env.botAPI.srv.URL+"/bot%s/%s")),
		web.NewWebAdapter(),
	)
	require.NoError(t, err)
	env.registry = reg
	env.resolver = channel.NewResolver(log, env.store, env.settings, reg, nil)
	env.contexts = knowledge.NewContextCache(log, cache.NewMemoryStringStore(time.Minute), 0, knowledge.DefaultLimits())
	engine := chat.NewEngine(log, env.completer, env.contexts, config.ChatConfig{APIKey: "sk-test"}, nil)
	env.dispatcher = dispatch.NewDispatcher(log, nil, dispatch.NewInlineBackend(log, 5*time.Second), nil)
	env.tracker = tracking.NewTracker(log, env.records, time.Second, nil)
	env.gw = gateway.New(log, reg, env.resolver, engine, env.dispatcher, env.tracker, nil, gateway.Options{})
	return env
}

func (env *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.dispatcher.Wait(ctx))
	require.NoError(t, env.tracker.Wait(ctx))
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func pageBot() bots.BotConfig {
	return bots.BotConfig{
		BotID:  "b1",
		UserID: "u1",
		Name:   "Shop",
		FAQs:   []string{"Hours: 9-5"},
		Messenger: bots.MessengerBinding{
			Enabled:         true,
			PageAccessToken: "EAAB",
			VerifyToken:     "vt",
			AppSecret:       "s3cret",
			PageID:          "P1",
		},
		Zalo: bots.ZaloBinding{Enabled: true, AccessToken: "zt", VerifyToken: "zv"},
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
