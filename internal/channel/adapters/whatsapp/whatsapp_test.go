package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

func testBot() bots.BotConfig {
	return bots.BotConfig{
		BotID: "b1",
		WhatsApp: bots.WhatsAppBinding{
			Enabled:       true,
			AccessToken:   "wa-token",
			PhoneNumberID: "1555",
			VerifyToken:   "vt",
			AppSecret:     "app-secret",
		},
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"w1","changes":[{"field":"messages","value":{
		"messaging_product":"whatsapp",
		"metadata":{"phone_number_id":"1555"},
		"contacts":[{"wa_id":"849000","profile":{"name":"Lan"}}],
		"messages":[
			{"from":"849000","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"Giá bao nhiêu?"}},
			{"from":"849000","id":"wamid.2","timestamp":"1700000001","type":"image","image":{"id":"i"}}
		]}}]}]}`)
	msgs, err := NewWhatsAppAdapter(nil, nil, "").Normalize(payload)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "Giá bao nhiêu?", msg.Text)
	assert.Equal(t, "849000", msg.Target)
	assert.Equal(t, "Lan", msg.SenderName)
	assert.Equal(t, "whatsapp_849000", msg.SessionID)
	assert.Equal(t, "1555", msg.MetaValue("phone_number_id"))
	assert.Equal(t, "1555", msg.BotHint)
	assert.Equal(t, int64(1700000000), msg.ReceivedAt.Unix())
}

func TestPayloadHintSelectsTenant(t *testing.T) {
	t.Parallel()

	first := testBot()
	first.BotID = "a-first"
	second := testBot()
	second.BotID = "b-second"
	second.WhatsApp.PhoneNumberID = "2666"

	adapter := NewWhatsAppAdapter(nil, nil, "")
	registry, err := channel.NewRegistry(adapter)
	require.NoError(t, err)
	resolver := channel.NewResolver(nil, bots.NewMemoryStore(first, second), nil, registry, nil)

	payload := []byte(`{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"2666"},
		"messages":[{"from":"849000","id":"wamid.9","timestamp":"1","type":"text","text":{"body":"hi"}}]}}]}]}`)
	msgs, err := adapter.Normalize(payload)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	bot, stage, err := resolver.Resolve(context.Background(), adapter, msgs[0].BotHint)
	require.NoError(t, err)
	assert.Equal(t, "b-second", bot.BotID)
	assert.Equal(t, channel.StageCaseInsensitive, stage)
}

func TestNormalizeStatusCallback(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`)
	msgs, err := NewWhatsAppAdapter(nil, nil, "").Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBindingStatus(t *testing.T) {
	t.Parallel()

	adapter := NewWhatsAppAdapter(nil, nil, "")
	assert.True(t, adapter.BindingStatus(testBot()).Usable())

	status := adapter.BindingStatus(bots.BotConfig{WhatsApp: bots.WhatsAppBinding{AccessToken: "t"}})
	assert.True(t, status.Bound)
	assert.False(t, status.Configured)
	assert.Equal(t, []string{"phoneNumberId"}, status.Missing)

	assert.False(t, adapter.BindingStatus(bots.BotConfig{}).Bound)
	assert.Equal(t, []string{"1555"}, adapter.Aliases(testBot()))
}

func TestVerifyAndHandshake(t *testing.T) {
	t.Parallel()

	adapter := NewWhatsAppAdapter(nil, nil, "")
	body := []byte(`{}`)
	header := http.Header{}
	header.Set(channel.HubSignatureHeader, channel.SignHub(body, "app-secret"))
	assert.NoError(t, adapter.Verify(body, header, testBot()))
	assert.ErrorIs(t, adapter.Verify([]byte(`{"x":1}`), header, testBot()), channel.ErrVerificationFailed)

	hs, ok := adapter.ParseHandshake(url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"vt"}, "hub.challenge": {"42"}})
	require.True(t, ok)
	assert.True(t, adapter.MatchHandshake(testBot(), hs))
	assert.Equal(t, "42", adapter.HandshakeReply(hs))
}

func TestSend(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1555/messages", r.URL.Path)
		assert.Equal(t, "Bearer wa-token", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.x"}]}`))
	}))
	defer srv.Close()

	adapter := NewWhatsAppAdapter(nil, srv.Client(), srv.URL)
	require.NoError(t, adapter.Send(context.Background(), testBot(), channel.OutboundReply{Target: "849000", Text: "Xin chào"}))
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "849000", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, map[string]any{"body": "Xin chào"}, got["text"])
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewWhatsAppAdapter(nil, srv.Client(), srv.URL)
	assert.Error(t, adapter.Send(context.Background(), testBot(), channel.OutboundReply{Target: "1", Text: "x"}))
	assert.Error(t, adapter.Send(context.Background(), bots.BotConfig{}, channel.OutboundReply{Target: "1", Text: "x"}))
	assert.Error(t, adapter.Send(context.Background(), testBot(), channel.OutboundReply{Text: "x"}))
}
