package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ulule/limiter/v3"

	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/channel/adapters/web"
	"github.com/memohai/chatgate/internal/chat"
	"github.com/memohai/chatgate/internal/gateway"
)

// PublicChatHandler serves the embeddable web chat widget.
type PublicChatHandler struct {
	gateway   *gateway.Gateway
	limiter   *limiter.Limiter
	validate  *validator.Validate
	bodyLimit int64
	logger    *slog.Logger
}

// NewPublicChatHandler creates the handler. A nil rate limiter disables
// rate limiting.
func NewPublicChatHandler(log *slog.Logger, gw *gateway.Gateway, rateLimiter *limiter.Limiter, bodyLimit int64) *PublicChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PublicChatHandler{
		gateway:   gw,
		limiter:   rateLimiter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		bodyLimit: bodyLimit,
		logger:    log.With(slog.String("handler", "public_chat")),
	}
}

func (h *PublicChatHandler) Register(e *echo.Echo) {
	cors := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, web.SignatureHeader},
	})
	e.POST("/api/public/chat", h.Chat, cors)
	e.OPTIONS("/api/public/chat", h.Preflight, cors)
}

func (h *PublicChatHandler) Preflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

// Chat godoc
// @Summary Public chat
// @Description Answer one message from the web widget synchronously
// @Tags chat
// @Param payload body web.ChatRequest true "Chat request"
// @Success 200 {object} ChatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /api/public/chat [post]
func (h *PublicChatHandler) Chat(c echo.Context) error {
	if limited, err := h.rateLimited(c); err != nil {
		h.logger.Warn("rate limiter unavailable", slog.Any("error", err))
	} else if limited {
		return c.JSON(http.StatusTooManyRequests, errorBody("Too many requests. Please try again later."))
	}

	body, err := readBody(c, h.bodyLimit)
	if err != nil {
		return err
	}
	var req web.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(validationMessage(err)))
	}

	reply, err := h.gateway.Chat(c.Request().Context(), req, body, c.Request().Header)
	if err != nil {
		status, msg := chatErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("public chat failed", slog.String("bot_id", req.BotID), slog.Any("error", err))
		}
		return c.JSON(status, errorBody(msg))
	}
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

func (h *PublicChatHandler) rateLimited(c echo.Context) (bool, error) {
	if h.limiter == nil {
		return false, nil
	}
	lctx, err := h.limiter.Get(c.Request().Context(), "public_chat:"+c.RealIP())
	if err != nil {
		return false, err
	}
	header := c.Response().Header()
	header.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
	header.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
	return lctx.Reached, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "max" && fe.Field() == "Message" {
				return "Message is too long"
			}
		}
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return "Bot ID and message are required"
			}
		}
	}
	return "Invalid request body"
}

func chatErrorStatus(err error) (int, string) {
	var (
		cfgErr *chat.ConfigError
		perr   *chat.ProviderError
	)
	switch {
	case errors.Is(err, channel.ErrBotNotFound):
		return http.StatusNotFound, "Bot not found"
	case errors.Is(err, channel.ErrVerificationFailed):
		return http.StatusForbidden, "Verification failed"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "Bot ID and message are required"
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "System OpenAI API key not configured"
	case errors.As(err, &perr):
		switch perr.Kind {
		case chat.KindTimeout:
			return http.StatusGatewayTimeout, "Request timeout. Please try again."
		case chat.KindRateLimit:
			return http.StatusTooManyRequests, "Too many requests. Please try again later."
		case chat.KindAuth:
			return http.StatusUnauthorized, "API authentication failed."
		}
	}
	return http.StatusInternalServerError, "Failed to generate response"
}
