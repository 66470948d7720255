// Package messenger adapts Facebook Messenger page webhooks.
package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/common"
	"github.com/memohai/chatgate/internal/config"
)

const Type = channel.ChannelMessenger

const (
	messengerMaxMessageLength = 2000
	getStartedPayload         = "GET_STARTED"
	platform                  = "messenger"
)

// MessengerAdapter handles page events and replies through the Send API.
type MessengerAdapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// NewMessengerAdapter creates the adapter. An empty baseURL selects the
// public Graph API.
func NewMessengerAdapter(log *slog.Logger, client *http.Client, baseURL string) *MessengerAdapter {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = common.NewHTTPClient()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/" + config.DefaultMessengerVersion
	}
	return &MessengerAdapter{
		logger:  log.With(slog.String("adapter", "messenger")),
		client:  client,
		baseURL: baseURL,
	}
}

func (a *MessengerAdapter) Type() channel.ChannelType {
	return Type
}

func (a *MessengerAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Messenger",
		TextLimit:   messengerMaxMessageLength,
	}
}

func (a *MessengerAdapter) BindingStatus(bot bots.BotConfig) channel.BindingStatus {
	b := bot.Messenger
	configured := strings.TrimSpace(b.PageAccessToken) != ""
	status := channel.BindingStatus{
		Bound:      b.Enabled || configured,
		Enabled:    b.Enabled,
		Configured: configured,
	}
	if !configured {
		status.Missing = []string{"pageAccessToken"}
	}
	return status
}

// Aliases lets page events resolve by the page id.
func (a *MessengerAdapter) Aliases(bot bots.BotConfig) []string {
	if id := strings.TrimSpace(bot.Messenger.PageID); id != "" {
		return []string{id}
	}
	return nil
}

func (a *MessengerAdapter) Verify(payload []byte, header http.Header, bot bots.BotConfig) error {
	return channel.VerifyHubSignature(payload, header.Get(channel.HubSignatureHeader), bot.Messenger.AppSecret)
}

func (a *MessengerAdapter) ParseHandshake(query url.Values) (channel.Handshake, bool) {
	return common.ParseHubHandshake(query)
}

func (a *MessengerAdapter) MatchHandshake(bot bots.BotConfig, hs channel.Handshake) bool {
	return common.MatchHubHandshake(hs, bot.Messenger.VerifyToken)
}

func (a *MessengerAdapter) Optimistic() bool {
	return false
}

// HandshakeReply echoes the challenge as plain text.
func (a *MessengerAdapter) HandshakeReply(hs channel.Handshake) any {
	return hs.Challenge
}

func (a *MessengerAdapter) Greetings() []string {
	return nil
}

func (a *MessengerAdapter) Welcome(bot bots.BotConfig) string {
	return common.VietnameseWelcome(bot)
}

type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string  `json:"id"`
	Time      int64   `json:"time"`
	Messaging []event `json:"messaging"`
}

type participant struct {
	ID string `json:"id"`
}

type event struct {
	Sender    participant `json:"sender"`
	Recipient participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message,omitempty"`
	Postback *struct {
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"postback,omitempty"`
}

// Normalize walks entry[].messaging[] of page events. Echoes, attachments
// and postbacks other than GET_STARTED are skipped.
func (a *MessengerAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode messenger payload: %w", err)
	}
	if body.Object != "page" {
		return nil, nil
	}
	var out []channel.InboundMessage
	for _, e := range body.Entry {
		for _, ev := range e.Messaging {
			senderID := strings.TrimSpace(ev.Sender.ID)
			if senderID == "" {
				continue
			}
			pageID := strings.TrimSpace(e.ID)
			if pageID == "" {
				pageID = strings.TrimSpace(ev.Recipient.ID)
			}
			msg := channel.InboundMessage{
				Channel:    Type,
				SenderID:   senderID,
				Target:     senderID,
				SessionID:  "messenger_" + senderID,
				BotHint:    pageID,
				Meta:       map[string]string{"page_id": ev.Recipient.ID},
				ReceivedAt: time.UnixMilli(ev.Timestamp).UTC(),
			}
			switch {
			case ev.Postback != nil:
				if ev.Postback.Payload != getStartedPayload {
					continue
				}
				msg.Greeting = true
				msg.Text = ev.Postback.Title
			case ev.Message != nil && !ev.Message.IsEcho:
				msg.ID = ev.Message.MID
				msg.Text = strings.TrimSpace(ev.Message.Text)
				if msg.Text == "" {
					continue
				}
			default:
				continue
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

func (a *MessengerAdapter) Send(ctx context.Context, bot bots.BotConfig, reply channel.OutboundReply) error {
	token := strings.TrimSpace(bot.Messenger.PageAccessToken)
	if token == "" {
		return fmt.Errorf("messenger page access token is required")
	}
	to := strings.TrimSpace(reply.Target)
	if to == "" {
		return fmt.Errorf("messenger recipient is required")
	}
	body := map[string]any{
		"recipient": map[string]string{"id": to},
		"message":   map[string]string{"text": channel.TruncateText(reply.Text, messengerMaxMessageLength)},
	}
	endpoint := a.baseURL + "/me/messages?access_token=" + url.QueryEscape(token)
	return common.PostJSON(ctx, a.client, platform, endpoint, nil, body, nil)
}

// PageInfo identifies the page behind an access token.
type PageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PageInfo looks up the page the bot's access token belongs to.
func (a *MessengerAdapter) PageInfo(ctx context.Context, bot bots.BotConfig) (PageInfo, error) {
	token := strings.TrimSpace(bot.Messenger.PageAccessToken)
	if token == "" {
		return PageInfo{}, fmt.Errorf("messenger page access token is required")
	}
	endpoint := a.baseURL + "/me?fields=id,name&access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PageInfo{}, err
	}
	var info PageInfo
	if err := common.Do(a.client, platform, req, &info); err != nil {
		return PageInfo{}, err
	}
	return info, nil
}
