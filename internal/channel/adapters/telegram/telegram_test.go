package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

const testToken = "123:abc"

type sentRequest struct {
	method string
	form   map[string]string
}

// fakeBotAPI answers Bot API calls for testToken and records them.
type fakeBotAPI struct {
	mu       sync.Mutex
	requests []sentRequest
	// rejectHTML makes sendMessage fail when parse_mode is HTML.
	rejectHTML bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
	form := make(map[string]string, len(r.Form))
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, sentRequest{method: method, form: form})
	rejectHTML := f.rejectHTML
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"b","username":"shop_bot"}}`)
	case "sendMessage":
		if rejectHTML && form["parse_mode"] == tgbotapi.ModeHTML {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unexpected end tag"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":5,"chat":{"id":42,"type":"private"},"date":0}}`)
	case "setWebhook", "deleteWebhook":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	case "getWebhookInfo":
		fmt.Fprint(w, `{"ok":true,"result":{"url":"https://gw.example.com/api/telegram/webhook","has_custom_certificate":false,"pending_update_count":2}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeBotAPI) calls(method string) []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRequest
	for _, req := range f.requests {
		if req.method == method {
			out = append(out, req)
		}
	}
	return out
}

func newTestAdapter(t *testing.T, api *fakeBotAPI) *TelegramAdapter {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewTelegramAdapter(nil, WithAPIEndpoint(srv.URL+"/bot%s/%s"))
}

func testBot() bots.BotConfig {
	return bots.BotConfig{
		BotID: "b1",
		Name:  "Shop",
		Telegram: bots.TelegramBinding{
			Enabled:     true,
			BotToken:    testToken,
			SecretToken: "s3cret",
		},
	}
}

func TestNormalizeTextMessage(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"update_id":9,"message":{"message_id":77,"date":1700000000,"chat":{"id":42,"type":"private"},"from":{"id":7,"is_bot":false,"first_name":"Ann","username":"ann"},"text":"  hello  "}}`)
	msgs, err := NewTelegramAdapter(nil).Normalize(payload)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, channel.ChannelTelegram, msg.Channel)
	assert.Equal(t, "42", msg.Target)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "telegram_42", msg.SessionID)
	assert.Equal(t, "7", msg.SenderID)
	assert.Equal(t, "ann", msg.SenderName)
	assert.Equal(t, "77", msg.ID)
	assert.Equal(t, int64(1700000000), msg.ReceivedAt.Unix())
}

func TestNormalizeIgnoresNonText(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil)
	for _, payload := range []string{
		`{"update_id":1}`,
		`{"update_id":2,"message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"photo":[{"file_id":"x","file_unique_id":"y","width":1,"height":1}]}}`,
		`{"update_id":3,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"edited"}}`,
	} {
		msgs, err := adapter.Normalize([]byte(payload))
		require.NoError(t, err)
		assert.Empty(t, msgs, payload)
	}
	_, err := adapter.Normalize([]byte(`{not json`))
	assert.Error(t, err)
}

func TestResolveTelegramSender(t *testing.T) {
	t.Parallel()

	id, name := resolveTelegramSender(&tgbotapi.Message{From: &tgbotapi.User{ID: 1, FirstName: "Ann", LastName: "Lee"}})
	if id != "1" || name != "Ann Lee" {
		t.Fatalf("unexpected sender: %s %s", id, name)
	}
	id, name = resolveTelegramSender(&tgbotapi.Message{SenderChat: &tgbotapi.Chat{ID: -100, Title: "News"}})
	if id != "-100" || name != "News" {
		t.Fatalf("unexpected sender chat: %s %s", id, name)
	}
	id, name = resolveTelegramSender(&tgbotapi.Message{})
	if id != "" || name != "" {
		t.Fatalf("expected empty sender")
	}
}

func TestVerifySecretToken(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil)
	bot := testBot()
	header := http.Header{}
	header.Set(SecretTokenHeader, "s3cret")
	assert.NoError(t, adapter.Verify(nil, header, bot))

	header.Set(SecretTokenHeader, "wrong")
	assert.ErrorIs(t, adapter.Verify(nil, header, bot), channel.ErrVerificationFailed)

	bot.Telegram.SecretToken = ""
	assert.ErrorIs(t, adapter.Verify(nil, header, bot), channel.ErrVerificationSkipped)
}

func TestBindingStatus(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil)
	status := adapter.BindingStatus(testBot())
	assert.True(t, status.Usable())

	status = adapter.BindingStatus(bots.BotConfig{Telegram: bots.TelegramBinding{Enabled: true}})
	assert.True(t, status.Bound)
	assert.False(t, status.Configured)
	assert.Equal(t, []string{"botToken"}, status.Missing)

	status = adapter.BindingStatus(bots.BotConfig{})
	assert.False(t, status.Bound)
}

func TestAck(t *testing.T) {
	t.Parallel()

	adapter := NewTelegramAdapter(nil)
	assert.Equal(t, map[string]any{"ok": true, "queued": true, "message": "Message queued"}, adapter.Ack(nil, true))
	assert.Equal(t, map[string]any{"ok": true, "queued": false, "message": "Message processed"}, adapter.Ack(nil, false))
}

func TestSendFormatsHTML(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	adapter := newTestAdapter(t, api)
	reply := channel.OutboundReply{Channel: Type, Target: "42", Text: "**Open** daily"}
	require.NoError(t, adapter.Send(context.Background(), testBot(), reply))

	sends := api.calls("sendMessage")
	require.Len(t, sends, 1)
	assert.Equal(t, "42", sends[0].form["chat_id"])
	assert.Equal(t, tgbotapi.ModeHTML, sends[0].form["parse_mode"])
	assert.Equal(t, "<b>Open</b> daily", sends[0].form["text"])
}

func TestSendFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{rejectHTML: true}
	adapter := newTestAdapter(t, api)
	reply := channel.OutboundReply{Channel: Type, Target: "42", Text: "**Open** daily"}
	require.NoError(t, adapter.Send(context.Background(), testBot(), reply))

	sends := api.calls("sendMessage")
	require.Len(t, sends, 2)
	assert.Equal(t, "", sends[1].form["parse_mode"])
	assert.Equal(t, "**Open** daily", sends[1].form["text"])
}

func TestSendReusesClient(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	adapter := newTestAdapter(t, api)
	reply := channel.OutboundReply{Channel: Type, Target: "42", Text: "hi"}
	require.NoError(t, adapter.Send(context.Background(), testBot(), reply))
	require.NoError(t, adapter.Send(context.Background(), testBot(), reply))
	assert.Len(t, api.calls("getMe"), 1)
}

func TestSendRejectsBadTarget(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, &fakeBotAPI{})
	err := adapter.Send(context.Background(), testBot(), channel.OutboundReply{Target: "not-a-chat"})
	assert.Error(t, err)
	err = adapter.Send(context.Background(), testBot(), channel.OutboundReply{Target: ""})
	assert.Error(t, err)

	err = adapter.Send(context.Background(), bots.BotConfig{BotID: "b2"}, channel.OutboundReply{Target: "42"})
	assert.Error(t, err)
}

func TestIsTelegramParseError(t *testing.T) {
	t.Parallel()

	parseErr := &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities"}
	assert.True(t, isTelegramParseError(parseErr))
	assert.True(t, isTelegramParseError(fmt.Errorf("wrapped: %w", parseErr)))
	assert.True(t, isTelegramParseError(tgbotapi.Error{Code: 400, Message: "Can't parse entities"}))
	assert.False(t, isTelegramParseError(&tgbotapi.Error{Code: 403, Message: "Forbidden"}))
	assert.False(t, isTelegramParseError(errors.New("can't parse entities")))
}

func TestTruncateTelegramText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ư", telegramMaxMessageLength+10)
	got := truncateTelegramText(long)
	if utf8.RuneCountInString(got) != telegramMaxMessageLength {
		t.Fatalf("unexpected length: %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
	if sanitizeTelegramText("ok\xffok") != "okok" {
		t.Fatalf("expected invalid bytes dropped")
	}
}

func TestWebhookURL(t *testing.T) {
	t.Parallel()

	got, err := WebhookURL("https://gw.example.com/", "bot 1")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example.com/api/telegram/webhook?botId=bot+1", got)

	_, err = WebhookURL("http://gw.example.com", "b1")
	assert.Error(t, err)
	_, err = WebhookURL("", "b1")
	assert.Error(t, err)
}

func TestWebhookAdmin(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	adapter := newTestAdapter(t, api)
	bot := testBot()
	ctx := context.Background()

	require.NoError(t, adapter.SetWebhook(ctx, bot, "https://gw.example.com/api/telegram/webhook?botId=b1"))
	sets := api.calls("setWebhook")
	require.Len(t, sets, 1)
	assert.Equal(t, "https://gw.example.com/api/telegram/webhook?botId=b1", sets[0].form["url"])
	assert.Equal(t, "s3cret", sets[0].form["secret_token"])

	require.NoError(t, adapter.DeleteWebhook(ctx, bot))
	assert.Len(t, api.calls("deleteWebhook"), 1)

	info, err := adapter.BotInfo(ctx, bot)
	require.NoError(t, err)
	assert.Equal(t, "shop_bot", info.Username)
	assert.Equal(t, int64(1), info.ID)
	assert.Equal(t, 2, info.PendingUpdateCount)
	assert.Equal(t, "https://gw.example.com/api/telegram/webhook", info.WebhookURL)
}
