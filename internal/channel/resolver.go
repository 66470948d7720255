package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
)

// Stage names the bot resolution step that produced a match.
type Stage string

const (
	StageExact           Stage = "exact"
	StageUnchecked       Stage = "unchecked"
	StageCaseInsensitive Stage = "case_insensitive"
	StageFirstEnabled    Stage = "first_enabled"
)

// StageObserver records which stage resolved a bot.
type StageObserver interface {
	ObserveStage(channel, stage string)
}

// Resolver maps a webhook hint to a bot configuration.
type Resolver struct {
	store    bots.Store
	settings *cache.Settings
	registry *Registry
	observer StageObserver
	logger   *slog.Logger
}

func NewResolver(log *slog.Logger, store bots.Store, settings *cache.Settings, registry *Registry, observer StageObserver) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:    store,
		settings: settings,
		registry: registry,
		observer: observer,
		logger:   log.With(slog.String("component", "bot_resolver")),
	}
}

// Lookup returns the bot stored under botID through the channel's settings
// cache, without any fallback.
func (r *Resolver) Lookup(ctx context.Context, channelType ChannelType, botID string) (bots.BotConfig, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return bots.BotConfig{}, fmt.Errorf("%w: empty id", ErrBotNotFound)
	}
	if r.settings == nil {
		return r.store.Get(ctx, botID)
	}
	return r.settings.Load(ctx, channelType.String(), botID, r.store.Get)
}

// Resolve finds the bot for hint in four stages: an exact enabled match, an
// exact match ignoring the enabled flag, a case-insensitive scan over bots
// carrying the channel's credentials, and, only without a hint, the first
// enabled bot of the channel.
func (r *Resolver) Resolve(ctx context.Context, adapter Adapter, hint string) (bots.BotConfig, Stage, error) {
	return r.resolve(ctx, adapter, hint, true)
}

// Identify runs the same stages as Resolve without recording the stage. The
// gateway uses it to find the secret a webhook must be verified against.
func (r *Resolver) Identify(ctx context.Context, adapter Adapter, hint string) (bots.BotConfig, error) {
	bot, _, err := r.resolve(ctx, adapter, hint, false)
	return bot, err
}

func (r *Resolver) resolve(ctx context.Context, adapter Adapter, hint string, observe bool) (bots.BotConfig, Stage, error) {
	channelType := adapter.Type()
	hint = strings.TrimSpace(hint)

	if hint != "" {
		bot, err := r.Lookup(ctx, channelType, hint)
		switch {
		case err == nil:
			status := r.registry.BindingStatus(channelType, bot)
			if !status.Configured {
				return bots.BotConfig{}, "", &ConfigError{Channel: channelType, BotID: bot.BotID, Missing: status.Missing}
			}
			if status.Enabled {
				return r.matched(channelType, bot, observe, StageExact)
			}
			if observe {
				r.logger.Warn("bot resolved with channel disabled",
					slog.String("channel", channelType.String()),
					slog.String("bot_id", bot.BotID),
				)
			}
			return r.matched(channelType, bot, observe, StageUnchecked)
		case !errors.Is(err, ErrBotNotFound):
			return bots.BotConfig{}, "", fmt.Errorf("resolve bot %s: %w", hint, err)
		}
	}

	candidates, err := r.store.List(ctx)
	if err != nil {
		return bots.BotConfig{}, "", fmt.Errorf("list bots: %w", err)
	}

	if hint != "" {
		unescaped, uerr := url.QueryUnescape(hint)
		if uerr != nil {
			unescaped = hint
		}
		aliases, _ := adapter.(AliasProvider)
		for _, bot := range candidates {
			if !r.registry.BindingStatus(channelType, bot).Configured {
				continue
			}
			if matchesHint(bot.BotID, hint, unescaped) || matchesAlias(aliases, bot, hint, unescaped) {
				if r.settings != nil {
					r.settings.Put(channelType.String(), bot)
				}
				return r.matched(channelType, bot, observe, StageCaseInsensitive)
			}
		}
		return bots.BotConfig{}, "", fmt.Errorf("%w: %s", ErrBotNotFound, hint)
	}

	for _, bot := range candidates {
		if r.registry.BindingStatus(channelType, bot).Usable() {
			if r.settings != nil {
				r.settings.Put(channelType.String(), bot)
			}
			return r.matched(channelType, bot, observe, StageFirstEnabled)
		}
	}
	return bots.BotConfig{}, "", fmt.Errorf("%w: no enabled %s bot", ErrBotNotFound, channelType)
}

func (r *Resolver) matched(channelType ChannelType, bot bots.BotConfig, observe bool, stage Stage) (bots.BotConfig, Stage, error) {
	if observe && r.observer != nil {
		r.observer.ObserveStage(channelType.String(), string(stage))
	}
	return bot, stage, nil
}

func matchesHint(candidate, hint, unescaped string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	return strings.EqualFold(candidate, hint) || strings.EqualFold(candidate, unescaped)
}

func matchesAlias(aliases AliasProvider, bot bots.BotConfig, hint, unescaped string) bool {
	if aliases == nil {
		return false
	}
	for _, alias := range aliases.Aliases(bot) {
		if matchesHint(alias, hint, unescaped) {
			return true
		}
	}
	return false
}
