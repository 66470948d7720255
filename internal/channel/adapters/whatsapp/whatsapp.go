// Package whatsapp adapts the WhatsApp Business Cloud API.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/common"
	"github.com/memohai/chatgate/internal/config"
)

const Type = channel.ChannelWhatsApp

const (
	whatsappMaxMessageLength = 4096
	platform                 = "whatsapp"
)

// WhatsAppAdapter handles Cloud API webhooks and replies with text messages.
type WhatsAppAdapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// NewWhatsAppAdapter creates the adapter. An empty baseURL selects the
// public Graph API.
func NewWhatsAppAdapter(log *slog.Logger, client *http.Client, baseURL string) *WhatsAppAdapter {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		client = common.NewHTTPClient()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/" + config.DefaultWhatsAppVersion
	}
	return &WhatsAppAdapter{
		logger:  log.With(slog.String("adapter", "whatsapp")),
		client:  client,
		baseURL: baseURL,
	}
}

func (a *WhatsAppAdapter) Type() channel.ChannelType {
	return Type
}

func (a *WhatsAppAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "WhatsApp",
		TextLimit:   whatsappMaxMessageLength,
	}
}

func (a *WhatsAppAdapter) BindingStatus(bot bots.BotConfig) channel.BindingStatus {
	b := bot.WhatsApp
	var missing []string
	if strings.TrimSpace(b.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	if strings.TrimSpace(b.PhoneNumberID) == "" {
		missing = append(missing, "phoneNumberId")
	}
	return channel.BindingStatus{
		Bound:      b.Enabled || len(missing) < 2,
		Enabled:    b.Enabled,
		Configured: len(missing) == 0,
		Missing:    missing,
	}
}

// Aliases lets a bot be addressed by its phone number id.
func (a *WhatsAppAdapter) Aliases(bot bots.BotConfig) []string {
	if id := strings.TrimSpace(bot.WhatsApp.PhoneNumberID); id != "" {
		return []string{id}
	}
	return nil
}

func (a *WhatsAppAdapter) Verify(payload []byte, header http.Header, bot bots.BotConfig) error {
	return channel.VerifyHubSignature(payload, header.Get(channel.HubSignatureHeader), bot.WhatsApp.AppSecret)
}

func (a *WhatsAppAdapter) ParseHandshake(query url.Values) (channel.Handshake, bool) {
	return common.ParseHubHandshake(query)
}

func (a *WhatsAppAdapter) MatchHandshake(bot bots.BotConfig, hs channel.Handshake) bool {
	return common.MatchHubHandshake(hs, bot.WhatsApp.VerifyToken)
}

func (a *WhatsAppAdapter) Optimistic() bool {
	return false
}

func (a *WhatsAppAdapter) HandshakeReply(hs channel.Handshake) any {
	return hs.Challenge
}

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []waMessage `json:"messages"`
}

type waMessage struct {
	From      string  `json:"from"`
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Type      string  `json:"type"`
	Text      *waText `json:"text,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

// Normalize walks entry[].changes[].value.messages[] and keeps text messages.
// Status callbacks carry no messages and yield nothing.
func (a *WhatsAppAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var body waPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode whatsapp payload: %w", err)
	}
	var out []channel.InboundMessage
	for _, e := range body.Entry {
		for _, change := range e.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					continue
				}
				text := strings.TrimSpace(m.Text.Body)
				from := strings.TrimSpace(m.From)
				if text == "" || from == "" {
					continue
				}
				msg := channel.InboundMessage{
					Channel:    Type,
					ID:         m.ID,
					SenderID:   from,
					SenderName: names[from],
					Target:     from,
					Text:       text,
					SessionID:  "whatsapp_" + from,
					BotHint:    strings.TrimSpace(change.Value.Metadata.PhoneNumberID),
					Meta:       map[string]string{"phone_number_id": change.Value.Metadata.PhoneNumberID},
				}
				if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					msg.ReceivedAt = time.Unix(ts, 0).UTC()
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

func (a *WhatsAppAdapter) Send(ctx context.Context, bot bots.BotConfig, reply channel.OutboundReply) error {
	b := bot.WhatsApp
	if strings.TrimSpace(b.AccessToken) == "" || strings.TrimSpace(b.PhoneNumberID) == "" {
		return fmt.Errorf("whatsapp access token and phone number id are required")
	}
	to := strings.TrimSpace(reply.Target)
	if to == "" {
		return fmt.Errorf("whatsapp recipient is required")
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": channel.TruncateText(reply.Text, whatsappMaxMessageLength)},
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimSpace(b.AccessToken))
	endpoint := fmt.Sprintf("%s/%s/messages", a.baseURL, url.PathEscape(strings.TrimSpace(b.PhoneNumberID)))
	return common.PostJSON(ctx, a.client, platform, endpoint, header, body, nil)
}
