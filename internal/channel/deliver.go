package channel

import (
	"context"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
)

// Deliver sends reply. When the channel refuses it and apology is not
// empty, the apology is sent once in its place; a failure of that second
// send is ignored. The returned error is always a *DeliveryError.
func Deliver(ctx context.Context, sender Sender, bot bots.BotConfig, reply OutboundReply, apology string) error {
	err := sender.Send(ctx, bot, reply)
	if err == nil {
		return nil
	}
	if apology = strings.TrimSpace(apology); apology != "" && apology != reply.Text {
		_ = sender.Send(ctx, bot, reply.WithText(apology))
	}
	return &DeliveryError{
		Channel: reply.Channel,
		BotID:   bot.BotID,
		Target:  reply.Target,
		Err:     err,
	}
}
