// Package gateway runs inbound webhook traffic through verification,
// dispatch, bot resolution, reply generation, delivery and tracking.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/dispatch"
	"github.com/memohai/chatgate/internal/metrics"
	"github.com/memohai/chatgate/internal/tracking"
)

// ErrUnknownChannel is returned for a channel type no adapter serves.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrBotStoreUnavailable means the bot a webhook addresses could not be
// looked up, so its signature could not be checked.
var ErrBotStoreUnavailable = errors.New("bot store unavailable")

// Webhook outcomes recorded in webhook_requests_total.
const (
	OutcomeQueued      = "queued"
	OutcomeInline      = "inline"
	OutcomeIgnored     = "ignored"
	OutcomeMalformed   = "malformed"
	OutcomeRejected    = "rejected"
	OutcomeIntercepted = "intercepted"
	OutcomeUnavailable = "unavailable"
)

// Responder produces the bot reply to one user message.
type Responder interface {
	Respond(ctx context.Context, bot bots.BotConfig, userText, apiKey, channel string) (string, error)
}

var _ Responder = (*chat.Engine)(nil)

// Options toggles gateway policies.
type Options struct {
	// StrictSignatures rejects webhooks whose bot has no secret to verify.
	StrictSignatures bool
	// Queue selects the channels whose work goes through the queue.
	Queue config.QueueConfig
}

// Gateway is the message pipeline shared by every channel.
type Gateway struct {
	registry   *channel.Registry
	resolver   *channel.Resolver
	responder  Responder
	dispatcher *dispatch.Dispatcher
	tracker    *tracking.Tracker
	metrics    *metrics.Metrics
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func New(
	log *slog.Logger,
	registry *channel.Registry,
	resolver *channel.Resolver,
	responder Responder,
	dispatcher *dispatch.Dispatcher,
	tracker *tracking.Tracker,
	m *metrics.Metrics,
	opts Options,
) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		registry:   registry,
		resolver:   resolver,
		responder:  responder,
		dispatcher: dispatcher,
		tracker:    tracker,
		metrics:    m,
		opts:       opts,
		logger:     log.With(slog.String("component", "gateway")),
		now:        time.Now,
	}
}

// WebhookResult is what the webhook handler writes back.
type WebhookResult struct {
	Body     any
	Queued   bool
	Messages int
}

func (g *Gateway) adapter(channelType channel.ChannelType) (channel.Adapter, error) {
	adapter, ok := g.registry.Get(channelType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channelType)
	}
	return adapter, nil
}

// HandleWebhook accepts one webhook body. A failed verification, an
// unreachable bot store and an unknown channel are errors; everything else
// is acknowledged.
func (g *Gateway) HandleWebhook(ctx context.Context, channelType channel.ChannelType, hint string, payload []byte, header http.Header) (WebhookResult, error) {
	adapter, err := g.adapter(channelType)
	if err != nil {
		return WebhookResult{}, err
	}
	ch := channelType.String()
	hint = strings.TrimSpace(hint)

	normalizer, _ := g.registry.GetNormalizer(channelType)
	var (
		messages []channel.InboundMessage
		normErr  error
	)
	if normalizer != nil {
		messages, normErr = normalizer.Normalize(payload)
	}

	if err := g.verify(ctx, adapter, verificationHint(hint, messages), payload, header); err != nil {
		outcome := OutcomeRejected
		if errors.Is(err, ErrBotStoreUnavailable) {
			outcome = OutcomeUnavailable
		}
		g.metrics.WebhookRequest(ch, outcome)
		return WebhookResult{}, err
	}

	if interceptor, ok := g.registry.GetInterceptor(channelType); ok {
		if body, handled := interceptor.Intercept(payload); handled {
			g.metrics.WebhookRequest(ch, OutcomeIntercepted)
			return WebhookResult{Body: body}, nil
		}
	}

	if normErr != nil {
		g.logger.Warn("malformed webhook payload",
			slog.String("channel", ch),
			slog.String("bot_id", hint),
			slog.Any("error", normErr),
		)
		g.metrics.WebhookRequest(ch, OutcomeMalformed)
		return WebhookResult{Body: g.registry.Ack(channelType, nil, false)}, nil
	}
	if len(messages) == 0 {
		g.metrics.WebhookRequest(ch, OutcomeIgnored)
		return WebhookResult{Body: g.registry.Ack(channelType, nil, false)}, nil
	}

	item := dispatch.WorkItem{
		Update:    json.RawMessage(payload),
		BotID:     hint,
		Channel:   ch,
		Timestamp: g.now().UnixMilli(),
	}
	queued := g.dispatcher.Dispatch(ctx, item, g.opts.Queue.UsesQueue(ch), g.Process)
	outcome := OutcomeInline
	if queued {
		outcome = OutcomeQueued
	}
	g.metrics.WebhookRequest(ch, outcome)
	return WebhookResult{
		Body:     g.registry.Ack(channelType, messages, queued),
		Queued:   queued,
		Messages: len(messages),
	}, nil
}

func verificationHint(hint string, messages []channel.InboundMessage) string {
	if hint != "" {
		return hint
	}
	for _, msg := range messages {
		if h := strings.TrimSpace(msg.BotHint); h != "" {
			return h
		}
	}
	return ""
}

// verify checks the payload against the secret of the bot it addresses.
// Requests for bots that do not exist or lack credentials pass: processing
// drops them. A store failure rejects the request.
func (g *Gateway) verify(ctx context.Context, adapter channel.Adapter, hint string, payload []byte, header http.Header) error {
	verifier, ok := g.registry.GetVerifier(adapter.Type())
	if !ok {
		return nil
	}
	ch := adapter.Type().String()
	bot, err := g.resolver.Identify(ctx, adapter, hint)
	if err != nil {
		var cfgErr *channel.ConfigError
		if !errors.Is(err, channel.ErrBotNotFound) && !errors.As(err, &cfgErr) {
			g.logger.Error("webhook bot lookup failed",
				slog.String("channel", ch),
				slog.String("bot_id", hint),
				slog.Any("error", err),
			)
			return fmt.Errorf("%w: %v", ErrBotStoreUnavailable, err)
		}
		g.logger.Debug("webhook bot not identified before verification",
			slog.String("channel", ch),
			slog.String("bot_id", hint),
			slog.Any("error", err),
		)
		return nil
	}
	switch err := verifier.Verify(payload, header, bot); {
	case err == nil:
		return nil
	case errors.Is(err, channel.ErrVerificationSkipped):
		if g.opts.StrictSignatures {
			g.logger.Warn("unsigned webhook rejected",
				slog.String("channel", ch),
				slog.String("bot_id", bot.BotID),
			)
			return channel.ErrVerificationFailed
		}
		g.logger.Warn("webhook accepted without signature verification",
			slog.String("channel", ch),
			slog.String("bot_id", bot.BotID),
		)
		return nil
	default:
		g.logger.Warn("webhook verification failed",
			slog.String("channel", ch),
			slog.String("bot_id", bot.BotID),
		)
		return channel.ErrVerificationFailed
	}
}

// Process answers every message of a work item. It is the inline processor
// and the body of the queue worker. Only failures worth a retry, such as an
// unreachable bot store, are returned.
func (g *Gateway) Process(ctx context.Context, item dispatch.WorkItem) error {
	channelType := channel.ChannelType(strings.ToLower(strings.TrimSpace(item.Channel)))
	adapter, err := g.adapter(channelType)
	if err != nil {
		return err
	}
	normalizer, ok := g.registry.GetNormalizer(channelType)
	if !ok {
		return nil
	}
	messages, err := normalizer.Normalize(item.Update)
	if err != nil {
		g.logger.Warn("drop undecodable work item", slog.String("channel", item.Channel), slog.Any("error", err))
		return nil
	}
	var errs []error
	for _, msg := range messages {
		if err := g.handleMessage(ctx, adapter, item.BotID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) handleMessage(ctx context.Context, adapter channel.Adapter, hint string, msg channel.InboundMessage) error {
	channelType := adapter.Type()
	ch := channelType.String()
	if strings.TrimSpace(hint) == "" {
		hint = msg.BotHint
	}
	bot, _, err := g.resolver.Resolve(ctx, adapter, hint)
	if err != nil {
		var cfgErr *channel.ConfigError
		switch {
		case errors.As(err, &cfgErr):
			g.logger.Warn("bot is not configured for channel",
				slog.String("channel", ch),
				slog.String("bot_id", cfgErr.BotID),
				slog.Any("missing", cfgErr.Missing),
			)
			return nil
		case errors.Is(err, channel.ErrBotNotFound):
			g.logger.Warn("no bot for webhook", slog.String("channel", ch), slog.String("bot_id", hint))
			return nil
		default:
			g.logger.Error("resolve bot failed", slog.String("channel", ch), slog.String("bot_id", hint), slog.Any("error", err))
			return err
		}
	}

	text, answered := g.reply(ctx, bot, msg)
	if text == "" {
		return nil
	}
	if sender, ok := g.registry.GetSender(channelType); ok && strings.TrimSpace(msg.Target) != "" {
		apology := g.registry.Apology(channelType, channel.ApologyGeneric)
		if err := channel.Deliver(ctx, sender, bot, msg.Reply(text), apology); err != nil {
			g.metrics.DeliveryFailed(ch)
			g.logger.Warn("reply delivery failed",
				slog.String("channel", ch),
				slog.String("bot_id", bot.BotID),
				slog.Any("error", err),
			)
			return nil
		}
	}
	if answered {
		g.track(ctx, bot, msg, text)
	}
	return nil
}

// reply returns the text to send and whether it is a completion. Failures
// turn into the channel's apology.
func (g *Gateway) reply(ctx context.Context, bot bots.BotConfig, msg channel.InboundMessage) (string, bool) {
	channelType := msg.Channel
	if g.registry.IsGreeting(msg) {
		return g.registry.Welcome(channelType, bot), false
	}
	text, err := g.responder.Respond(ctx, bot, msg.Text, "", channelType.String())
	if err == nil {
		return text, true
	}
	if errors.Is(err, chat.ErrEmptyMessage) {
		g.logger.Debug("ignore blank message", slog.String("channel", channelType.String()), slog.String("bot_id", bot.BotID))
		return "", false
	}
	kind := apologyKind(err)
	var cfgErr *chat.ConfigError
	if errors.As(err, &cfgErr) {
		g.logger.Warn("bot cannot answer",
			slog.String("channel", channelType.String()),
			slog.String("bot_id", bot.BotID),
			slog.String("reason", cfgErr.Reason),
		)
	} else {
		g.logger.Error("provider error",
			slog.String("channel", channelType.String()),
			slog.String("bot_id", bot.BotID),
			slog.Any("error", err),
		)
	}
	return g.registry.Apology(channelType, kind), false
}

func apologyKind(err error) channel.ApologyKind {
	var cfgErr *chat.ConfigError
	if errors.As(err, &cfgErr) {
		return channel.ApologyNotConfigured
	}
	var perr *chat.ProviderError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case chat.KindTimeout:
			return channel.ApologyTimeout
		case chat.KindRateLimit:
			return channel.ApologyRateLimit
		}
	}
	return channel.ApologyGeneric
}

func (g *Gateway) track(ctx context.Context, bot bots.BotConfig, msg channel.InboundMessage, reply string) {
	g.tracker.Track(ctx, tracking.Record{
		UserID:    bot.UserID,
		BotID:     bot.BotID,
		Channel:   msg.Channel.String(),
		Message:   msg.Text,
		Response:  reply,
		SessionID: msg.SessionID,
	})
}
