package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
)

// ContextCache memoizes assembled contexts per bot.
type ContextCache struct {
	store     cache.StringStore
	maxLength int
	limits    Limits
	logger    *slog.Logger
}

func NewContextCache(log *slog.Logger, store cache.StringStore, maxLength int, limits Limits) *ContextCache {
	if log == nil {
		log = slog.Default()
	}
	return &ContextCache{
		store:     store,
		maxLength: maxLength,
		limits:    limits,
		logger:    log.With(slog.String("component", "knowledge_cache")),
	}
}

// contextKey is the bare bot id. The store owns the key namespace.
func contextKey(botID string) string {
	return strings.TrimSpace(botID)
}

// Context returns the assembled context for bot, building it on a miss.
func (c *ContextCache) Context(ctx context.Context, bot bots.BotConfig) string {
	key := contextKey(bot.BotID)
	if text, ok := c.store.Get(ctx, key); ok {
		return text
	}
	text := Assemble(bot.KnowledgeBase(), c.maxLength, c.limits)
	c.store.Set(ctx, key, text)
	c.logger.Debug("knowledge context assembled",
		slog.String("bot_id", bot.BotID),
		slog.Int("length", len(text)),
	)
	return text
}

// Invalidate drops the cached context of one bot, or every bot when botID
// is empty.
func (c *ContextCache) Invalidate(ctx context.Context, botID string) int {
	if strings.TrimSpace(botID) == "" {
		return c.store.Clear(ctx)
	}
	if c.store.Delete(ctx, contextKey(botID)) {
		return 1
	}
	return 0
}
