package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/app"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	startFn    func(ctx context.Context, req app.StartRequest) (*domain.View, error)
	dispatchFn func(ctx context.Context, req domain.Request) (*domain.Outcome, error)
	getFn      func(ctx context.Context, sessionID string, scope domain.Scope) (*domain.View, error)
	removeFn   func(ctx context.Context, sessionID string, scope domain.Scope, actorID string, targets []string) (*domain.Outcome, error)
	renameFn   func(ctx context.Context, sessionID string, scope domain.Scope, actorID, title string) (*domain.Outcome, error)
}

func (m *mockAppService) Start(ctx context.Context, req app.StartRequest) (*domain.View, error) {
	if m.startFn != nil {
		return m.startFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Dispatch(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Get(ctx context.Context, sessionID string, scope domain.Scope) (*domain.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sessionID, scope)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockAppService) RemovePlayers(ctx context.Context, sessionID string, scope domain.Scope, actorID string, targets []string) (*domain.Outcome, error) {
	if m.removeFn != nil {
		return m.removeFn(ctx, sessionID, scope, actorID, targets)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Rename(ctx context.Context, sessionID string, scope domain.Scope, actorID, title string) (*domain.Outcome, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, sessionID, scope, actorID, title)
	}
	return nil, errors.New("not implemented")
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	srv := &Server{
		echo: echo.New(),
		config: &config.Config{
			Backend:                  config.BackendMemory,
			RateLimitPerSecond:       1000,
			RateLimitBurst:           1000,
			ActionRateLimitPerSecond: 1000,
			ActionRateLimitBurst:     1000,
		},
		app:         app,
		registry:    reg,
		httpMetrics: metrics.NewHTTPMetrics(reg),
		startTime:   time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withRateLimit(perSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.RateLimitPerSecond = perSecond
		s.config.RateLimitBurst = burst
	}
}

func withActionRateLimit(perSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.ActionRateLimitPerSecond = perSecond
		s.config.ActionRateLimitBurst = burst
	}
}

func newJSONRequest(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.RemoteAddr = testRemoteAddr
	return req
}

// record runs req through the full middleware chain and router.
func record(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func serve(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	return record(srv, newJSONRequest(method, path, body))
}
