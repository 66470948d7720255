// Package web is the synchronous channel behind the public chat endpoint.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

const Type = channel.ChannelWeb

// SignatureHeader optionally carries "sha256=<hex>" of the body signed with
// the bot's web secret.
const SignatureHeader = "X-Signature-256"

// ChatRequest is the public chat request body.
type ChatRequest struct {
	BotID     string `json:"botId" validate:"required"`
	Message   string `json:"message" validate:"required,max=4000"`
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

type WebAdapter struct{}

func NewWebAdapter() *WebAdapter {
	return &WebAdapter{}
}

func (a *WebAdapter) Type() channel.ChannelType {
	return Type
}

func (a *WebAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Web",
		Synchronous: true,
	}
}

// BindingStatus accepts every bot: the public widget needs no credentials.
func (a *WebAdapter) BindingStatus(bots.BotConfig) channel.BindingStatus {
	return channel.BindingStatus{Bound: true, Enabled: true, Configured: true}
}

func (a *WebAdapter) Verify(payload []byte, header http.Header, bot bots.BotConfig) error {
	return channel.VerifyHubSignature(payload, header.Get(SignatureHeader), bot.Web.Secret)
}

// Normalize decodes a ChatRequest. The bot id travels as the bot hint.
func (a *WebAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var req ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode chat request: %w", err)
	}
	return []channel.InboundMessage{req.Inbound()}, nil
}

// Inbound converts the request into an inbound message.
func (r ChatRequest) Inbound() channel.InboundMessage {
	return channel.InboundMessage{
		Channel:    Type,
		Text:       strings.TrimSpace(r.Message),
		BotHint:    strings.TrimSpace(r.BotID),
		SessionID:  strings.TrimSpace(r.SessionID),
		ReceivedAt: time.Now().UTC(),
	}
}
