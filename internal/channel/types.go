// Package channel provides the abstraction shared by every messaging channel
// the gateway serves: inbound and outbound message types, adapter
// capabilities, the adapter registry and bot resolution.
package channel

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "zalo").
type ChannelType string

const (
	ChannelWeb       ChannelType = "web"
	ChannelTelegram  ChannelType = "telegram"
	ChannelMessenger ChannelType = "messenger"
	ChannelZalo      ChannelType = "zalo"
	ChannelDiscord   ChannelType = "discord"
	ChannelWhatsApp  ChannelType = "whatsapp"
)

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// InboundMessage is a user message extracted from a webhook payload.
type InboundMessage struct {
	Channel    ChannelType
	ID         string
	SenderID   string
	SenderName string
	// Target is where the reply goes: a chat id, a recipient id, a phone number.
	Target string
	Text   string
	// BotHint is a bot identifier carried by the payload itself, such as the
	// Zalo OA id. The webhook query hint takes precedence.
	BotHint   string
	SessionID string
	// Greeting marks payloads that are greetings regardless of their text,
	// such as a "get started" postback.
	Greeting   bool
	Meta       map[string]string
	ReceivedAt time.Time
}

// MetaValue returns the trimmed metadata value for key.
func (m InboundMessage) MetaValue(key string) string {
	if m.Meta == nil {
		return ""
	}
	return strings.TrimSpace(m.Meta[key])
}

// Reply builds the outbound reply addressed back to the sender.
func (m InboundMessage) Reply(text string) OutboundReply {
	var meta map[string]string
	if len(m.Meta) > 0 {
		meta = make(map[string]string, len(m.Meta))
		for k, v := range m.Meta {
			meta[k] = v
		}
	}
	return OutboundReply{
		Channel: m.Channel,
		Target:  m.Target,
		Text:    text,
		Meta:    meta,
	}
}

// OutboundReply is a text reply addressed to a channel recipient.
type OutboundReply struct {
	Channel ChannelType
	Target  string
	Text    string
	Meta    map[string]string
}

// WithText returns a copy of the reply carrying different text.
func (r OutboundReply) WithText(text string) OutboundReply {
	r.Text = text
	return r
}

// MetaValue returns the trimmed metadata value for key.
func (r OutboundReply) MetaValue(key string) string {
	if r.Meta == nil {
		return ""
	}
	return strings.TrimSpace(r.Meta[key])
}

// BindingStatus describes a bot's binding to one channel.
type BindingStatus struct {
	// Bound reports whether the bot carries any settings for the channel.
	Bound bool
	// Enabled is the binding's own enabled flag.
	Enabled bool
	// Configured reports whether the minimum credential set is present.
	Configured bool
	// Missing names the absent credentials when Configured is false.
	Missing []string
}

// Usable reports whether replies can be produced and delivered.
func (s BindingStatus) Usable() bool {
	return s.Enabled && s.Configured
}

// Handshake is a webhook subscription challenge.
type Handshake struct {
	Mode      string
	Token     string
	Challenge string
}

// ApologyKind selects the apology text sent when a reply cannot be produced.
type ApologyKind string

const (
	ApologyTimeout       ApologyKind = "timeout"
	ApologyRateLimit     ApologyKind = "rate_limit"
	ApologyGeneric       ApologyKind = "generic"
	ApologyNotConfigured ApologyKind = "not_configured"
)

var defaultApologies = map[ApologyKind]string{
	ApologyTimeout:       "Sorry, I took too long to answer. Please try again in a moment.",
	ApologyRateLimit:     "Sorry, I am receiving too many messages right now. Please try again shortly.",
	ApologyGeneric:       "Sorry, something went wrong while I was preparing a reply. Please try again.",
	ApologyNotConfigured: "Sorry, this bot is not fully configured yet.",
}

// DefaultApology returns the English apology text for kind.
func DefaultApology(kind ApologyKind) string {
	if text, ok := defaultApologies[kind]; ok {
		return text
	}
	return defaultApologies[ApologyGeneric]
}
