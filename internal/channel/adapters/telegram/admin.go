package telegram

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/chatgate/internal/bots"
)

// BotInfo describes the Telegram bot behind a token.
type BotInfo struct {
	ID                 int64  `json:"id"`
	Username           string `json:"username"`
	FirstName          string `json:"firstName"`
	WebhookURL         string `json:"webhookUrl,omitempty"`
	PendingUpdateCount int    `json:"pendingUpdateCount"`
	LastErrorMessage   string `json:"lastErrorMessage,omitempty"`
}

// WebhookURL is the gateway address Telegram should call for bot.
func WebhookURL(publicBaseURL, botID string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("public base url %q is not a valid url", publicBaseURL)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("telegram webhooks require an https public base url")
	}
	return base + "/api/telegram/webhook?botId=" + url.QueryEscape(botID), nil
}

// SetWebhook registers webhookURL with the bot's secret token.
func (a *TelegramAdapter) SetWebhook(_ context.Context, bot bots.BotConfig, webhookURL string) error {
	client, err := a.getOrCreateBot(bot.Telegram.BotToken, bot.BotID)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params["url"] = webhookURL
	params.AddNonEmpty("secret_token", strings.TrimSpace(bot.Telegram.SecretToken))
	params["allowed_updates"] = `["message"]`
	if _, err := client.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set telegram webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the registered webhook.
func (a *TelegramAdapter) DeleteWebhook(_ context.Context, bot bots.BotConfig) error {
	client, err := a.getOrCreateBot(bot.Telegram.BotToken, bot.BotID)
	if err != nil {
		return err
	}
	if _, err := client.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete telegram webhook: %w", err)
	}
	return nil
}

// BotInfo returns the bot identity and its webhook state.
func (a *TelegramAdapter) BotInfo(_ context.Context, bot bots.BotConfig) (BotInfo, error) {
	client, err := a.getOrCreateBot(bot.Telegram.BotToken, bot.BotID)
	if err != nil {
		return BotInfo{}, err
	}
	info := BotInfo{
		ID:        client.Self.ID,
		Username:  client.Self.UserName,
		FirstName: client.Self.FirstName,
	}
	webhook, err := client.GetWebhookInfo()
	if err != nil {
		return info, fmt.Errorf("get telegram webhook info: %w", err)
	}
	info.WebhookURL = webhook.URL
	info.PendingUpdateCount = webhook.PendingUpdateCount
	info.LastErrorMessage = webhook.LastErrorMessage
	return info, nil
}
