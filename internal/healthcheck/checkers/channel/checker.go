package channelchecker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/healthcheck"
)

const (
	checkTypeChannelBinding = healthcheck.TypeChannelBinding
	titleKeyChannelBinding  = "bots.checks.titles.channelBinding"
)

// Checker reports how a bot is bound to every registered channel.
type Checker struct {
	logger   *slog.Logger
	store    bots.Store
	registry *channel.Registry
}

// NewChecker creates a channel binding checker.
func NewChecker(log *slog.Logger, store bots.Store, registry *channel.Registry) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		store:    store,
		registry: registry,
	}
}

// ListChecks evaluates the channel bindings of a bot. Channels the bot
// carries no settings for are left out.
func (c *Checker) ListChecks(ctx context.Context, botID string) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return []healthcheck.CheckResult{}
	}
	if c.store == nil || c.registry == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable", slog.String("bot_id", botID))
		return []healthcheck.CheckResult{{
			ID:       checkTypeChannelBinding + ".service",
			Type:     checkTypeChannelBinding,
			TitleKey: titleKeyChannelBinding,
			Status:   healthcheck.StatusWarn,
			Summary:  "Channel checker service is not available.",
		}}
	}

	bot, err := c.store.Get(ctx, botID)
	if err != nil {
		item := healthcheck.CheckResult{
			ID:       checkTypeChannelBinding + ".bot",
			Type:     checkTypeChannelBinding,
			TitleKey: titleKeyChannelBinding,
			Status:   healthcheck.StatusError,
			Summary:  "Bot configuration could not be loaded.",
			Detail:   err.Error(),
		}
		if errors.Is(err, bots.ErrBotNotFound) {
			item.Summary = "Bot not found."
		}
		return []healthcheck.CheckResult{item}
	}

	types := c.registry.Types()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	checks := make([]healthcheck.CheckResult, 0, len(types))
	for _, channelType := range types {
		if _, ok := c.registry.GetBinder(channelType); !ok {
			continue
		}
		status := c.registry.BindingStatus(channelType, bot)
		if !status.Bound {
			continue
		}
		name := channelType.String()
		item := healthcheck.CheckResult{
			ID:       checkTypeChannelBinding + "." + name,
			Type:     checkTypeChannelBinding,
			TitleKey: titleKeyChannelBinding,
			Subtitle: name,
			Metadata: map[string]any{
				"channel_type": name,
				"enabled":      status.Enabled,
				"configured":   status.Configured,
			},
		}
		switch {
		case !status.Configured:
			item.Status = healthcheck.StatusError
			item.Summary = fmt.Sprintf("Channel %s is missing credentials.", name)
			item.Detail = strings.Join(status.Missing, ", ")
		case !status.Enabled:
			item.Status = healthcheck.StatusWarn
			item.Summary = fmt.Sprintf("Channel %s is disabled.", name)
		default:
			item.Status = healthcheck.StatusOK
			item.Summary = fmt.Sprintf("Channel %s is ready.", name)
		}
		checks = append(checks, item)
	}
	return checks
}
