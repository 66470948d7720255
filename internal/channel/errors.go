package channel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
)

var (
	// ErrVerificationFailed means the webhook signature or token is wrong.
	ErrVerificationFailed = errors.New("webhook verification failed")
	// ErrVerificationSkipped means the bot has no secret to verify against.
	ErrVerificationSkipped = errors.New("webhook verification skipped: no secret configured")
	// ErrBotNotFound means no bot matched the hint at any resolution stage.
	ErrBotNotFound = bots.ErrBotNotFound
)

// ConfigError reports a bot bound to a channel without the credentials it
// needs there.
type ConfigError struct {
	Channel ChannelType
	BotID   string
	Missing []string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("bot %s is not configured for %s", e.BotID, e.Channel)
	}
	return fmt.Sprintf("bot %s is not configured for %s: missing %s", e.BotID, e.Channel, strings.Join(e.Missing, ", "))
}

// DeliveryError reports a reply the channel refused.
type DeliveryError struct {
	Channel ChannelType
	BotID   string
	Target  string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s reply for bot %s to %s: %v", e.Channel, e.BotID, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
