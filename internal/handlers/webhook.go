package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/gateway"
)

// WebhookHandler receives channel webhooks and answers subscription
// handshakes.
type WebhookHandler struct {
	gateway   *gateway.Gateway
	registry  *channel.Registry
	resolver  *channel.Resolver
	store     bots.Store
	bodyLimit int64
	logger    *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, gw *gateway.Gateway, registry *channel.Registry, resolver *channel.Resolver, store bots.Store, bodyLimit int64) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		gateway:   gw,
		registry:  registry,
		resolver:  resolver,
		store:     store,
		bodyLimit: bodyLimit,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/:channel/webhook", h.Receive)
	e.GET("/api/:channel/webhook", h.Handshake)
}

// webhookAdapter resolves the path channel. The synchronous web channel has
// no webhook.
func (h *WebhookHandler) webhookAdapter(c echo.Context) (channel.Adapter, error) {
	channelType, err := h.registry.ParseChannelType(c.Param("channel"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	adapter, ok := h.registry.Get(channelType)
	if !ok || adapter.Descriptor().Synchronous {
		return nil, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no webhook for channel %s", channelType))
	}
	return adapter, nil
}

// Receive godoc
// @Summary Channel webhook
// @Description Accept a platform update and acknowledge it. The reply is sent asynchronously.
// @Tags webhooks
// @Param channel path string true "Channel type"
// @Param botId query string false "Bot ID"
// @Success 200 {object} map[string]any
// @Failure 403 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Router /api/{channel}/webhook [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	adapter, err := h.webhookAdapter(c)
	if err != nil {
		return err
	}
	body, err := readBody(c, h.bodyLimit)
	if err != nil {
		return err
	}
	hint := strings.TrimSpace(c.QueryParam("botId"))
	// Processing outlives the request.
	ctx := context.WithoutCancel(c.Request().Context())
	result, err := h.gateway.HandleWebhook(ctx, adapter.Type(), hint, body, c.Request().Header)
	if err != nil {
		if errors.Is(err, channel.ErrVerificationFailed) {
			return c.JSON(http.StatusForbidden, errorBody("Verification failed"))
		}
		if errors.Is(err, gateway.ErrBotStoreUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, errorBody("Service unavailable"))
		}
		if errors.Is(err, gateway.ErrUnknownChannel) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result.Body)
}

// Handshake godoc
// @Summary Webhook subscription handshake
// @Description Echo the platform challenge when the verify token matches a bot
// @Tags webhooks
// @Param channel path string true "Channel type"
// @Param botId query string false "Bot ID"
// @Success 200 {string} string
// @Failure 403 {object} ErrorResponse
// @Router /api/{channel}/webhook [get]
func (h *WebhookHandler) Handshake(c echo.Context) error {
	adapter, err := h.webhookAdapter(c)
	if err != nil {
		return err
	}
	name := adapter.Descriptor().DisplayName
	handshaker, ok := h.registry.GetHandshaker(adapter.Type())
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"message": name + " webhook endpoint is active"})
	}
	hs, ok := handshaker.ParseHandshake(c.QueryParams())
	if !ok {
		if handshaker.Optimistic() {
			return c.JSON(http.StatusOK, map[string]string{"message": name + " webhook endpoint is active"})
		}
		return c.JSON(http.StatusForbidden, errorBody("Invalid request"))
	}

	hint := strings.TrimSpace(c.QueryParam("botId"))
	matched, err := h.matchHandshake(c.Request().Context(), adapter.Type(), handshaker, hint, hs)
	if err != nil {
		h.logger.Error("handshake lookup failed",
			slog.String("channel", adapter.Type().String()),
			slog.String("bot_id", hint),
			slog.Any("error", err),
		)
	}
	if !matched {
		if !handshaker.Optimistic() {
			h.logger.Warn("webhook handshake rejected",
				slog.String("channel", adapter.Type().String()),
				slog.String("bot_id", hint),
			)
			return c.JSON(http.StatusForbidden, errorBody("Verification failed"))
		}
		h.logger.Warn("webhook handshake token mismatch, answering anyway",
			slog.String("channel", adapter.Type().String()),
			slog.String("bot_id", hint),
		)
	}
	switch reply := handshaker.HandshakeReply(hs).(type) {
	case string:
		return c.String(http.StatusOK, reply)
	default:
		return c.JSON(http.StatusOK, reply)
	}
}

// matchHandshake checks the hinted bot, or every bot when there is no hint.
func (h *WebhookHandler) matchHandshake(ctx context.Context, channelType channel.ChannelType, handshaker channel.Handshaker, hint string, hs channel.Handshake) (bool, error) {
	if hint != "" {
		bot, err := h.resolver.Lookup(ctx, channelType, hint)
		if err != nil {
			if errors.Is(err, channel.ErrBotNotFound) {
				return false, nil
			}
			return false, err
		}
		return handshaker.MatchHandshake(bot, hs), nil
	}
	items, err := h.store.List(ctx)
	if err != nil {
		return false, err
	}
	for _, bot := range items {
		if handshaker.MatchHandshake(bot, hs) {
			return true, nil
		}
	}
	return false, nil
}
