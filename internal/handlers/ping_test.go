package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatgate/internal/handlers"
	gatewaychecker "github.com/memohai/chatgate/internal/healthcheck/checkers/gateway"
	"github.com/memohai/chatgate/internal/metrics"
)

func TestPingRoutes(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.WebhookRequest("telegram", "queued")
	e := echo.New()
	handlers.NewPingHandler(nil, nil, m).Register(e)

	cases := []struct {
		method   string
		path     string
		contains string
	}{
		{method: http.MethodGet, path: "/ping", contains: `"status":"ok"`},
		{method: http.MethodHead, path: "/health"},
		{method: http.MethodGet, path: "/healthz", contains: `"status":"ok"`},
		{method: http.MethodGet, path: "/metrics", contains: "chatgate_webhook_requests_total"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
		})
	}
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	t.Parallel()

	checker := gatewaychecker.NewChecker(nil,
		gatewaychecker.Probe{Name: "bot_store", Check: func(context.Context) error { return errors.New("connection refused") }},
		gatewaychecker.Probe{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("down") }},
	)
	e := echo.New()
	handlers.NewPingHandler(nil, checker, nil).Register(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Len(t, body["checks"], 2)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
