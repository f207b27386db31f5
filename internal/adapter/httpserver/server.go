package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/app"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/platform/config"
)

type appService interface {
	Start(ctx context.Context, req app.StartRequest) (*domain.View, error)
	Dispatch(ctx context.Context, req domain.Request) (*domain.Outcome, error)
	Get(ctx context.Context, sessionID string, scope domain.Scope) (*domain.View, error)
	RemovePlayers(ctx context.Context, sessionID string, scope domain.Scope, actorID string, targets []string) (*domain.Outcome, error)
	Rename(ctx context.Context, sessionID string, scope domain.Scope, actorID, title string) (*domain.Outcome, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	actions      *actorLimiter
	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the HTTP API. reg receives the HTTP metrics and is served on /metrics.
func NewServer(cfg *config.Config, app appService, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
