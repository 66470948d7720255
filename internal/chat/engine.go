package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/knowledge"
	"github.com/memohai/chatgate/internal/metrics"
)

// ContextSource returns the assembled knowledge context of a bot.
type ContextSource interface {
	Context(ctx context.Context, bot bots.BotConfig) string
}

var _ ContextSource = (*knowledge.ContextCache)(nil)

// Engine turns one user message into one bot reply.
type Engine struct {
	completer Completer
	contexts  ContextSource
	cfg       config.ChatConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(log *slog.Logger, completer Completer, contexts ContextSource, cfg config.ChatConfig, m *metrics.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		completer: completer,
		contexts:  contexts,
		cfg:       cfg,
		metrics:   m,
		logger:    log.With(slog.String("service", "chat")),
	}
}

// Respond generates the reply to userText for bot. apiKey overrides the
// bot's and the configured key when set. Failures are ErrEmptyMessage,
// *ConfigError or *ProviderError.
func (e *Engine) Respond(ctx context.Context, bot bots.BotConfig, userText, apiKey, channel string) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return "", ErrEmptyMessage
	}
	key := firstNonEmpty(apiKey, bot.APIKey, e.cfg.APIKey)
	if key == "" {
		return "", &ConfigError{BotID: bot.BotID, Reason: ReasonNoAPIKey}
	}

	system := SystemPrompt(PromptParams{
		BotName:   bot.Name,
		Welcome:   bot.Welcome(),
		Knowledge: e.contexts.Context(ctx, bot),
	})

	timeout := e.cfg.Timeout.Or(config.DefaultChatTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := e.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultChatMaxTokens
	}
	started := time.Now()
	reply, err := e.completer.Complete(callCtx, CompletionRequest{
		APIKey:      key,
		Model:       firstNonEmpty(bot.Model, e.cfg.Model, config.DefaultChatModel),
		System:      system,
		User:        userText,
		MaxTokens:   maxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		perr := classify(callCtx, err)
		e.metrics.Completion(channel, string(perr.Kind), time.Since(started))
		e.logger.Warn("completion failed",
			slog.String("bot_id", bot.BotID),
			slog.String("channel", channel),
			slog.String("kind", string(perr.Kind)),
			slog.Any("error", err),
		)
		return "", perr
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		e.metrics.Completion(channel, string(KindEmpty), time.Since(started))
		return "", &ProviderError{Kind: KindEmpty}
	}
	e.metrics.Completion(channel, "ok", time.Since(started))
	return reply, nil
}

func classify(ctx context.Context, err error) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}
	return &ProviderError{Kind: KindUnavailable, Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
