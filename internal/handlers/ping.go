package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/healthcheck"
	"github.com/memohai/chatgate/internal/metrics"
	"github.com/memohai/chatgate/internal/version"
)

type PingHandler struct {
	logger    *slog.Logger
	readiness healthcheck.Checker
	metrics   *metrics.Metrics
}

// NewPingHandler serves liveness, readiness and metrics. readiness is the
// process-wide checker behind /healthz.
func NewPingHandler(log *slog.Logger, readiness healthcheck.Checker, m *metrics.Metrics) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger:    log.With(slog.String("handler", "ping")),
		readiness: readiness,
		metrics:   m,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/healthz", h.Healthz)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Healthz godoc
// @Summary Gateway readiness
// @Description Probe the bot store, the queue and the cache backend
// @Tags ops
// @Success 200 {object} ChecksResponse
// @Failure 503 {object} ChecksResponse
// @Router /healthz [get]
func (h *PingHandler) Healthz(c echo.Context) error {
	resp := newChecksResponse("", listChecks(c.Request().Context(), h.readiness, ""))
	status := http.StatusOK
	if resp.Status == healthcheck.StatusError {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

// Check is the JSON view of a health check result.
type Check struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TitleKey string         `json:"titleKey,omitempty"`
	Subtitle string         `json:"subtitle,omitempty"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ChecksResponse struct {
	BotID  string  `json:"botId,omitempty"`
	Status string  `json:"status"`
	Checks []Check `json:"checks"`
}

func newChecksResponse(botID string, items []healthcheck.CheckResult) ChecksResponse {
	checks := make([]Check, 0, len(items))
	for _, item := range items {
		checks = append(checks, Check{
			ID:       item.ID,
			Type:     item.Type,
			TitleKey: item.TitleKey,
			Subtitle: item.Subtitle,
			Status:   item.Status,
			Summary:  item.Summary,
			Detail:   item.Detail,
			Metadata: item.Metadata,
		})
	}
	return ChecksResponse{BotID: botID, Status: healthcheck.Overall(items), Checks: checks}
}

// listChecks runs checker, tolerating a nil one.
func listChecks(ctx context.Context, checker healthcheck.Checker, botID string) []healthcheck.CheckResult {
	if checker == nil {
		return nil
	}
	return checker.ListChecks(ctx, botID)
}
