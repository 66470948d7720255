package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/channel"
	"github.com/memohai/chatgate/internal/dispatch"
)

// WorkProcessor handles one queued work item.
type WorkProcessor interface {
	Process(ctx context.Context, item dispatch.WorkItem) error
}

// WorkerHandler is the queue callback target.
type WorkerHandler struct {
	processor WorkProcessor
	registry  *channel.Registry
	verifier  *dispatch.SignatureVerifier
	bodyLimit int64
	logger    *slog.Logger
	now       func() time.Time
}

func NewWorkerHandler(log *slog.Logger, processor WorkProcessor, registry *channel.Registry, verifier *dispatch.SignatureVerifier, bodyLimit int64) *WorkerHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WorkerHandler{
		processor: processor,
		registry:  registry,
		verifier:  verifier,
		bodyLimit: bodyLimit,
		logger:    log.With(slog.String("handler", "worker")),
		now:       time.Now,
	}
}

func (h *WorkerHandler) Register(e *echo.Echo) {
	e.POST("/api/:channel/worker", h.Process)
}

// Process godoc
// @Summary Queue worker callback
// @Description Process one queued webhook update. Non-2xx responses make the queue retry.
// @Tags webhooks
// @Param channel path string true "Channel type"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/{channel}/worker [post]
func (h *WorkerHandler) Process(c echo.Context) error {
	channelType, err := h.registry.ParseChannelType(c.Param("channel"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	body, err := readBody(c, h.bodyLimit)
	if err != nil {
		return err
	}
	if h.verifier.Enabled() {
		if err := h.verifier.Verify(c.Request().Header.Get(dispatch.SignatureHeader), body); err != nil {
			h.logger.Warn("worker signature rejected", slog.String("channel", channelType.String()), slog.Any("error", err))
			return c.JSON(http.StatusUnauthorized, errorBody("Invalid signature"))
		}
	}

	var item dispatch.WorkItem
	if err := json.Unmarshal(body, &item); err != nil || !hasUpdate(item.Update) {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid message format"))
	}
	item.Channel = channelType.String()

	if err := h.processor.Process(c.Request().Context(), item); err != nil {
		h.logger.Error("worker processing failed",
			slog.String("channel", item.Channel),
			slog.String("bot_id", item.BotID),
			slog.Any("error", err),
		)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Processing failed", Message: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"processedAt": h.now().UnixMilli(),
	})
}

func hasUpdate(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
