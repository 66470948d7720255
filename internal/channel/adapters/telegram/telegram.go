package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
)

// Type is the Telegram channel type.
const Type = channel.ChannelTelegram

const (
	telegramMaxMessageLength = 4096
	// SecretTokenHeader carries the secret registered with setWebhook.
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

var setLoggerOnce sync.Once

// TelegramAdapter receives Telegram webhook updates and answers them
// through the Bot API.
type TelegramAdapter struct {
	logger      *slog.Logger
	apiEndpoint string
	mu          sync.RWMutex
	bots        map[string]*tgbotapi.BotAPI // keyed by bot token
}

// Option customizes a TelegramAdapter.
type Option func(*TelegramAdapter)

// WithAPIEndpoint points the adapter at another Bot API server. The format
// follows tgbotapi.APIEndpoint.
func WithAPIEndpoint(endpoint string) Option {
	return func(a *TelegramAdapter) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			a.apiEndpoint = endpoint
		}
	}
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, opts ...Option) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	adapter := &TelegramAdapter{
		logger:      log.With(slog.String("adapter", "telegram")),
		apiEndpoint: tgbotapi.APIEndpoint,
		bots:        make(map[string]*tgbotapi.BotAPI),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	setLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	})
	return adapter
}

func (a *TelegramAdapter) getOrCreateBot(token, botID string) (*tgbotapi.BotAPI, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, a.apiEndpoint)
	if err != nil {
		a.logger.Error("create bot failed", slog.String("bot_id", botID), slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

// Forget drops the cached client of a token, e.g. after it was rotated.
func (a *TelegramAdapter) Forget(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bots, strings.TrimSpace(token))
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		TextLimit:   telegramMaxMessageLength,
	}
}

func (a *TelegramAdapter) BindingStatus(bot bots.BotConfig) channel.BindingStatus {
	b := bot.Telegram
	status := channel.BindingStatus{
		Bound:      b.Enabled || strings.TrimSpace(b.BotToken) != "",
		Enabled:    b.Enabled,
		Configured: strings.TrimSpace(b.BotToken) != "",
	}
	if !status.Configured {
		status.Missing = []string{"botToken"}
	}
	return status
}

// Verify checks the secret token header against the one set with setWebhook.
func (a *TelegramAdapter) Verify(_ []byte, header http.Header, bot bots.BotConfig) error {
	return channel.VerifyToken(header.Get(SecretTokenHeader), bot.Telegram.SecretToken)
}

// Normalize decodes an Update. Only text messages are answered.
func (a *TelegramAdapter) Normalize(payload []byte) ([]channel.InboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil, nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, nil
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID, senderName := resolveTelegramSender(msg)
	return []channel.InboundMessage{{
		Channel:    Type,
		ID:         strconv.Itoa(msg.MessageID),
		SenderID:   senderID,
		SenderName: senderName,
		Target:     chatID,
		Text:       text,
		SessionID:  "telegram_" + chatID,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}}, nil
}

// Ack is the webhook response body.
func (a *TelegramAdapter) Ack(_ []channel.InboundMessage, queued bool) any {
	message := "Message processed"
	if queued {
		message = "Message queued"
	}
	return map[string]any{"ok": true, "queued": queued, "message": message}
}

// Send formats the reply as Telegram HTML. When Telegram rejects the markup
// the reply is sent again as plain text.
func (a *TelegramAdapter) Send(_ context.Context, bot bots.BotConfig, reply channel.OutboundReply) error {
	to := strings.TrimSpace(reply.Target)
	if to == "" {
		return fmt.Errorf("telegram target is required")
	}
	client, err := a.getOrCreateBot(bot.Telegram.BotToken, bot.BotID)
	if err != nil {
		return err
	}
	err = sendTelegramText(client, to, FormatHTML(reply.Text), tgbotapi.ModeHTML)
	if err != nil && isTelegramParseError(err) {
		a.logger.Warn("telegram rejected html reply, resending as plain text",
			slog.String("bot_id", bot.BotID),
			slog.Any("error", err),
		)
		err = sendTelegramText(client, to, reply.Text, "")
	}
	return err
}

func resolveTelegramSender(msg *tgbotapi.Message) (string, string) {
	if msg.From != nil {
		displayName := strings.TrimSpace(msg.From.UserName)
		if displayName == "" {
			displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
		return strconv.FormatInt(msg.From.ID, 10), displayName
	}
	if msg.SenderChat != nil {
		displayName := strings.TrimSpace(msg.SenderChat.Title)
		if displayName == "" {
			displayName = strings.TrimSpace(msg.SenderChat.UserName)
		}
		return strconv.FormatInt(msg.SenderChat.ID, 10), displayName
	}
	return "", ""
}

func sendTelegramText(bot *tgbotapi.BotAPI, target string, text string, parseMode string) error {
	text = truncateTelegramText(sanitizeTelegramText(text))
	var message tgbotapi.MessageConfig
	if strings.HasPrefix(target, "@") {
		message = tgbotapi.NewMessageToChannel(target, text)
	} else {
		chatID, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram target must be @username or chat_id")
		}
		message = tgbotapi.NewMessage(chatID, text)
	}
	message.ParseMode = parseMode
	_, err := bot.Send(message)
	return err
}

func telegramAPIError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var value tgbotapi.Error
	if errors.As(err, &value) {
		return value, true
	}
	return tgbotapi.Error{}, false
}

func isTelegramParseError(err error) bool {
	apiErr, ok := telegramAPIError(err)
	return ok && apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "can't parse entities")
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength runes,
// appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	return channel.TruncateText(text, telegramMaxMessageLength)
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
