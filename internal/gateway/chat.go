package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/web"
)

// Chat answers a public chat request synchronously. The error is
// channel.ErrBotNotFound, channel.ErrVerificationFailed, or the responder's
// *chat.ConfigError or *chat.ProviderError.
func (g *Gateway) Chat(ctx context.Context, req web.ChatRequest, payload []byte, header http.Header) (string, error) {
	adapter, err := g.adapter(web.Type)
	if err != nil {
		return "", err
	}
	msg := req.Inbound()
	bot, err := g.resolver.Lookup(ctx, web.Type, msg.BotHint)
	if err != nil {
		if errors.Is(err, channel.ErrBotNotFound) {
			return "", err
		}
		return "", fmt.Errorf("load bot %s: %w", msg.BotHint, err)
	}
	g.metrics.ObserveStage(web.Type.String(), string(channel.StageExact))

	if verifier, ok := g.registry.GetVerifier(adapter.Type()); ok {
		switch err := verifier.Verify(payload, header, bot); {
		case err == nil, errors.Is(err, channel.ErrVerificationSkipped):
			// Bots without a web secret serve an unsigned public widget.
		default:
			g.logger.Warn("chat signature rejected", slog.String("bot_id", bot.BotID))
			return "", channel.ErrVerificationFailed
		}
	}

	if g.registry.IsGreeting(msg) {
		return g.registry.Welcome(web.Type, bot), nil
	}
	reply, err := g.responder.Respond(ctx, bot, msg.Text, "", web.Type.String())
	if err != nil {
		return "", err
	}
	g.track(ctx, bot, msg, reply)
	return reply, nil
}
