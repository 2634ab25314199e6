package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/gitopia/gitopia-discord-bot/internal/adapters/stream"
	"github.com/gitopia/gitopia-discord-bot/internal/config"
	"github.com/gitopia/gitopia-discord-bot/internal/logging"
	"github.com/gitopia/gitopia-discord-bot/internal/services"
)

const shutdownTimeout = 5 * time.Second

// StreamState reports the connection state of the node stream.
type StreamState interface {
	State() stream.State
}

// Server is the operations endpoint: health, status and metrics.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func NewServer(cfg config.Config, st StreamState, registry *services.Registry, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	logger = logging.Component(logger, "http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Debug()
			if v.Error != nil {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s := &Server{
		echo:   e,
		addr:   fmt.Sprintf(":%s", cfg.AppPort),
		logger: logger,
	}
	s.registerRoutes(st, registry, gatherer)
	return s
}

func (s *Server) registerRoutes(st StreamState, registry *services.Registry, gatherer prometheus.Gatherer) {
	s.echo.GET("/health", HealthHandler)
	s.echo.GET("/status", StatusHandler(st, registry))
	s.echo.GET("/metrics", MetricsHandler(gatherer))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("ops API listening")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.echo.Shutdown(ctx)
}
