// Package server provides the HTTP server and Echo setup for the webhook
// receiver, the alternative to long polling.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/maxgrab/maxgrab/internal/maxapi"
)

// UpdateHandler consumes one inbound platform event.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update maxapi.Update)
}

// Server is the HTTP server (Echo) receiving platform webhooks. The webhook
// path embeds a shared secret; requests to any other secret are rejected.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// NewServer builds the Echo server with recovery and request logging, and
// mounts the webhook route for the given secret.
func NewServer(log *slog.Logger, addr, secret string, handler UpdateHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
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

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/webhook/:secret", func(c echo.Context) error {
		if c.Param("secret") != secret {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		var update maxapi.Update
		if err := c.Bind(&update); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed update")
		}
		// Relay runs outlive the webhook request.
		handler.HandleUpdate(context.WithoutCancel(c.Request().Context()), update)
		return c.NoContent(http.StatusOK)
	})

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
