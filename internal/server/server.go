package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/chatgate/internal/auth"
)

// Handler registers its routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

var (
	jwtExactSkipPaths = map[string]struct{}{
		"/ping":            {},
		"/health":          {},
		"/healthz":         {},
		"/metrics":         {},
		"/api/public/chat": {},
	}
	// Webhooks and queue callbacks authenticate with their own signatures.
	jwtSuffixSkipPaths = []string{
		"/webhook",
		"/worker",
	}
)

// NewServer builds the echo instance. Admin routes require an HS256 bearer
// token when jwtSecret is set; without it they are open.
func NewServer(log *slog.Logger, addr, jwtSecret string, handlers ...Handler) *Server {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	if strings.TrimSpace(jwtSecret) != "" {
		e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
			return shouldSkipJWT(c.Request().URL.Path)
		}))
	} else {
		log.Warn("admin jwt secret not set, admin routes are unauthenticated")
	}

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error                   { return s.echo.Start(s.addr) }
func (s *Server) Stop(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// Echo exposes the instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func shouldSkipJWT(path string) bool {
	if _, ok := jwtExactSkipPaths[path]; ok {
		return true
	}
	if !strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/api/admin/") {
		return false
	}
	for _, suffix := range jwtSuffixSkipPaths {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
