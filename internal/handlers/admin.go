package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/bots"
	"github.com/memohai/chatgate/internal/cache"
	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/messenger"
	"github.com/memohai/chatgate/internal/channel/adapters/telegram"
	"github.com/memohai/chatgate/internal/channel/adapters/zalo"
	"github.com/memohai/chatgate/internal/healthcheck"
)

// KnowledgeInvalidator drops assembled knowledge contexts.
type KnowledgeInvalidator interface {
	Invalidate(ctx context.Context, botID string) int
}

type TelegramAdmin interface {
	SetWebhook(ctx context.Context, bot bots.BotConfig, webhookURL string) error
	DeleteWebhook(ctx context.Context, bot bots.BotConfig) error
	BotInfo(ctx context.Context, bot bots.BotConfig) (telegram.BotInfo, error)
}

type ZaloAdmin interface {
	OAInfo(ctx context.Context, bot bots.BotConfig) (zalo.OAInfo, error)
}

type MessengerAdmin interface {
	PageInfo(ctx context.Context, bot bots.BotConfig) (messenger.PageInfo, error)
}

// AdminOptions collects the collaborators of the admin routes. Nil channel
// admins leave their routes unregistered.
type AdminOptions struct {
	Settings      *cache.Settings
	Knowledge     KnowledgeInvalidator
	Tokens        *cache.Tokens
	Resolver      *channel.Resolver
	Checker       healthcheck.Checker
	Telegram      TelegramAdmin
	Zalo          ZaloAdmin
	Messenger     MessengerAdmin
	PublicBaseURL string
	JWTSecret     string
	JWTExpiresIn  time.Duration
}

// AdminHandler serves the operator routes under /api/admin.
type AdminHandler struct {
	opts   AdminOptions
	logger *slog.Logger
}

func NewAdminHandler(log *slog.Logger, opts AdminOptions) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		opts:   opts,
		logger: log.With(slog.String("handler", "admin")),
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	group := e.Group("/api/admin")
	group.POST("/clear-cache", h.ClearCache)
	group.GET("/bots/:botId/checks", h.BotChecks)
	group.POST("/token/refresh", h.RefreshToken)
	if h.opts.Telegram != nil {
		group.POST("/telegram/set-webhook", h.SetTelegramWebhook)
		group.POST("/telegram/delete-webhook", h.DeleteTelegramWebhook)
		group.GET("/telegram/bot-info", h.TelegramBotInfo)
	}
	if h.opts.Zalo != nil {
		group.GET("/zalo/oa-info", h.ZaloOAInfo)
	}
	if h.opts.Messenger != nil {
		group.GET("/messenger/page-info", h.MessengerPageInfo)
	}
}

type BotRequest struct {
	BotID string `json:"botId"`
}

type ClearCacheResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Results []cache.InvalidateResult `json:"results"`
}

// ClearCache godoc
// @Summary Invalidate bot caches
// @Description Drop cached settings and knowledge for one bot, or for every bot when botId is empty
// @Tags admin
// @Param payload body BotRequest false "Bot to invalidate"
// @Success 200 {object} ClearCacheResponse
// @Router /api/admin/clear-cache [post]
func (h *AdminHandler) ClearCache(c echo.Context) error {
	var req BotRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	botID := strings.TrimSpace(req.BotID)
	ctx := c.Request().Context()

	results := []cache.InvalidateResult{}
	if h.opts.Settings != nil {
		results = h.opts.Settings.InvalidateAll(botID)
	}
	if h.opts.Knowledge != nil {
		results = append(results, cache.InvalidateResult{
			Channel: "knowledge",
			BotID:   botID,
			Cleared: h.opts.Knowledge.Invalidate(ctx, botID),
		})
	}
	message := "Cache cleared for bot " + botID
	if botID == "" {
		if h.opts.Tokens != nil {
			results = append(results, cache.InvalidateResult{Channel: "tokens", Cleared: h.opts.Tokens.Clear()})
		}
		message = "All caches cleared"
	}
	h.logger.Info("caches invalidated", slog.String("bot_id", botID), slog.Int("caches", len(results)))
	return c.JSON(http.StatusOK, ClearCacheResponse{Success: true, Message: message, Results: results})
}

// BotChecks godoc
// @Summary Bot binding checks
// @Tags admin
// @Param botId path string true "Bot ID"
// @Success 200 {object} ChecksResponse
// @Router /api/admin/bots/{botId}/checks [get]
func (h *AdminHandler) BotChecks(c echo.Context) error {
	botID := strings.TrimSpace(c.Param("botId"))
	if botID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "bot id is required")
	}
	items := listChecks(c.Request().Context(), h.opts.Checker, botID)
	return c.JSON(http.StatusOK, newChecksResponse(botID, items))
}

func (h *AdminHandler) RefreshToken(c echo.Context) error {
	if strings.TrimSpace(h.opts.JWTSecret) == "" {
		return echo.NewHTTPError(http.StatusNotFound, "admin tokens are disabled")
	}
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.opts.JWTSecret, h.opts.JWTExpiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": expiresAt,
	})
}

// lookupBot loads the bot named by the botId query or body field for a
// channel route.
func (h *AdminHandler) lookupBot(c echo.Context, channelType channel.ChannelType, botID string) (bots.BotConfig, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return bots.BotConfig{}, echo.NewHTTPError(http.StatusBadRequest, "botId is required")
	}
	if h.opts.Resolver == nil {
		return bots.BotConfig{}, echo.NewHTTPError(http.StatusServiceUnavailable, "bot store unavailable")
	}
	bot, err := h.opts.Resolver.Lookup(c.Request().Context(), channelType, botID)
	if err != nil {
		if errors.Is(err, channel.ErrBotNotFound) {
			return bots.BotConfig{}, echo.NewHTTPError(http.StatusNotFound, "Bot not found")
		}
		return bots.BotConfig{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return bot, nil
}

func bindBotRequest(c echo.Context) (BotRequest, error) {
	var req BotRequest
	if err := c.Bind(&req); err != nil {
		return BotRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BotID == "" {
		req.BotID = c.QueryParam("botId")
	}
	return req, nil
}

func upstreamError(platform string, err error) error {
	return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("%s: %v", platform, err))
}

// SetTelegramWebhook godoc
// @Summary Register the Telegram webhook
// @Tags admin
// @Param payload body BotRequest true "Bot"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/admin/telegram/set-webhook [post]
func (h *AdminHandler) SetTelegramWebhook(c echo.Context) error {
	req, err := bindBotRequest(c)
	if err != nil {
		return err
	}
	bot, err := h.lookupBot(c, channel.ChannelTelegram, req.BotID)
	if err != nil {
		return err
	}
	webhookURL, err := telegram.WebhookURL(h.opts.PublicBaseURL, bot.BotID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.opts.Telegram.SetWebhook(c.Request().Context(), bot, webhookURL); err != nil {
		return upstreamError("telegram", err)
	}
	h.logger.Info("telegram webhook set", slog.String("bot_id", bot.BotID), slog.String("url", webhookURL))
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"webhookUrl": webhookURL,
		"setAt":      time.Now().UTC(),
	})
}

func (h *AdminHandler) DeleteTelegramWebhook(c echo.Context) error {
	req, err := bindBotRequest(c)
	if err != nil {
		return err
	}
	bot, err := h.lookupBot(c, channel.ChannelTelegram, req.BotID)
	if err != nil {
		return err
	}
	if err := h.opts.Telegram.DeleteWebhook(c.Request().Context(), bot); err != nil {
		return upstreamError("telegram", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) TelegramBotInfo(c echo.Context) error {
	bot, err := h.lookupBot(c, channel.ChannelTelegram, c.QueryParam("botId"))
	if err != nil {
		return err
	}
	info, err := h.opts.Telegram.BotInfo(c.Request().Context(), bot)
	if err != nil {
		return upstreamError("telegram", err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *AdminHandler) ZaloOAInfo(c echo.Context) error {
	bot, err := h.lookupBot(c, channel.ChannelZalo, c.QueryParam("botId"))
	if err != nil {
		return err
	}
	info, err := h.opts.Zalo.OAInfo(c.Request().Context(), bot)
	if err != nil {
		return upstreamError("zalo", err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *AdminHandler) MessengerPageInfo(c echo.Context) error {
	bot, err := h.lookupBot(c, channel.ChannelMessenger, c.QueryParam("botId"))
	if err != nil {
		return err
	}
	info, err := h.opts.Messenger.PageInfo(c.Request().Context(), bot)
	if err != nil {
		return upstreamError("messenger", err)
	}
	return c.JSON(http.StatusOK, info)
}
