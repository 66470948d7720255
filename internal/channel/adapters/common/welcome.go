package common

import (
	"fmt"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
)

// VietnameseWelcome is the welcome text of channels serving Vietnamese users
// when the bot has none configured.
func VietnameseWelcome(bot bots.BotConfig) string {
	if text := strings.TrimSpace(bot.WelcomeMessage); text != "" {
		return text
	}
	name := strings.TrimSpace(bot.Name)
	if name == "" {
		name = "trợ lý ảo"
	}
	return fmt.Sprintf("Xin chào! Tôi là %s. Tôi có thể giúp gì cho bạn?", name)
}
