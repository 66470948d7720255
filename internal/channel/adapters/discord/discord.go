// Package discord adapts Discord interactions and bot channel messages.
package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

const Type = channel.ChannelDiscord

const (
	discordMaxMessageLength = 2000

	// Meta keys carried from an interaction to its followup.
	MetaInteractionToken = "interaction_token"
	MetaApplicationID    = "application_id"
)

type DiscordAdapter struct {
	logger     *slog.Logger
	httpClient *http.Client
	mu         sync.RWMutex
	sessions   map[string]*discordgo.Session // keyed by bot token
}

type Option func(*DiscordAdapter)

// WithHTTPClient sets the client the REST sessions use.
func WithHTTPClient(client *http.Client) Option {
	return func(a *DiscordAdapter) {
		a.httpClient = client
	}
}

func NewDiscordAdapter(log *slog.Logger, opts ...Option) *DiscordAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &DiscordAdapter{
		logger:   log.With(slog.String("adapter", "discord")),
		sessions: make(map[string]*discordgo.Session),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

func (a *DiscordAdapter) Type() channel.ChannelType {
	return Type
}

func (a *DiscordAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Discord",
		TextLimit:   discordMaxMessageLength,
	}
}

// getOrCreateSession returns a REST-only session. The gateway websocket is
// never opened.
func (a *DiscordAdapter) getOrCreateSession(token, botID string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	a.mu.RLock()
	session, ok := a.sessions[token]
	a.mu.RUnlock()
	if ok {
		return session, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[token]; ok {
		return s, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		a.logger.Error("create session failed", slog.String("bot_id", botID), slog.Any("error", err))
		return nil, err
	}
	if a.httpClient != nil {
		session.Client = a.httpClient
	}
	a.sessions[token] = session
	return session, nil
}

func (a *DiscordAdapter) BindingStatus(bot bots.BotConfig) channel.BindingStatus {
	b := bot.Discord
	configured := strings.TrimSpace(b.BotToken) != ""
	status := channel.BindingStatus{
		Bound:      b.Enabled || configured,
		Enabled:    b.Enabled,
		Configured: configured,
	}
	if !configured {
		status.Missing = []string{"botToken"}
	}
	return status
}

// Aliases lets interactions resolve by their application id.
func (a *DiscordAdapter) Aliases(bot bots.BotConfig) []string {
	if id := strings.TrimSpace(bot.Discord.ClientID); id != "" {
		return []string{id}
	}
	return nil
}

// Verify checks the Ed25519 interaction signature against the bot's public key.
func (a *DiscordAdapter) Verify(payload []byte, header http.Header, bot bots.BotConfig) error {
	raw := strings.TrimSpace(bot.Discord.PublicKey)
	if raw == "" {
		return channel.ErrVerificationSkipped
	}
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != ed25519.PublicKeySize {
		a.logger.Warn("discord public key is not a hex ed25519 key", slog.String("bot_id", bot.BotID))
		return channel.ErrVerificationFailed
	}
	req := &http.Request{Header: header, Body: io.NopCloser(bytes.NewReader(payload))}
	if !discordgo.VerifyInteraction(req, ed25519.PublicKey(key)) {
		return channel.ErrVerificationFailed
	}
	return nil
}

// Intercept answers PING interactions with PONG.
func (a *DiscordAdapter) Intercept(payload []byte) (any, bool) {
	var probe struct {
		Type discordgo.InteractionType `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, false
	}
	if probe.Type != discordgo.InteractionPing {
		return nil, false
	}
	return discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}, true
}

// Normalize turns an application command with a string option into a
// message. Other interactions are acknowledged without a reply.
func (a *DiscordAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var interaction discordgo.Interaction
	if err := json.Unmarshal(payload, &interaction); err != nil {
		return nil, fmt.Errorf("decode discord interaction: %w", err)
	}
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return nil, nil
	}
	data := interaction.ApplicationCommandData()
	text := strings.TrimSpace(firstStringOption(data.Options))
	if text == "" {
		return nil, nil
	}
	user := interaction.User
	if interaction.Member != nil && interaction.Member.User != nil {
		user = interaction.Member.User
	}
	msg := channel.InboundMessage{
		Channel: Type,
		ID:      interaction.ID,
		Target:  interaction.ChannelID,
		Text:    text,
		BotHint: interaction.AppID,
		Meta: map[string]string{
			MetaInteractionToken: interaction.Token,
			MetaApplicationID:    interaction.AppID,
			"command":            data.Name,
		},
	}
	if user != nil {
		msg.SenderID = user.ID
		msg.SenderName = user.Username
		msg.SessionID = "discord_" + user.ID
	}
	return []channel.InboundMessage{msg}, nil
}

func firstStringOption(options []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if opt.Type == discordgo.ApplicationCommandOptionString {
			if s, ok := opt.Value.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
			continue
		}
		if nested := firstStringOption(opt.Options); nested != "" {
			return nested
		}
	}
	return ""
}

// Ack defers the response of accepted commands; the answer follows as a
// followup message.
func (a *DiscordAdapter) Ack(messages []channel.InboundMessage, _ bool) any {
	for _, msg := range messages {
		if msg.MetaValue(MetaInteractionToken) != "" {
			return discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
		}
	}
	return map[string]any{"received": true}
}

func (a *DiscordAdapter) Send(ctx context.Context, bot bots.BotConfig, reply channel.OutboundReply) error {
	session, err := a.getOrCreateSession(bot.Discord.BotToken, bot.BotID)
	if err != nil {
		return err
	}
	text := truncateDiscordText(reply.Text)
	if token := reply.MetaValue(MetaInteractionToken); token != "" {
		appID := reply.MetaValue(MetaApplicationID)
		if appID == "" {
			appID = strings.TrimSpace(bot.Discord.ClientID)
		}
		interaction := &discordgo.Interaction{AppID: appID, Token: token}
		_, err = session.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{Content: text}, discordgo.WithContext(ctx))
		return err
	}
	channelID := strings.TrimSpace(reply.Target)
	if channelID == "" {
		return fmt.Errorf("discord target is required")
	}
	_, err = session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func truncateDiscordText(text string) string {
	return channel.TruncateText(text, discordMaxMessageLength)
}
