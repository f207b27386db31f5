package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/teamdraft/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	checkOK = "ok"
)

// HealthCheck is a named dependency check. A check named after the configured backend
// guards the session store; any other check is auxiliary.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status      string            `json:"status"`
	Backend     string            `json:"backend"`
	FailedCheck string            `json:"failed_check,omitempty"`
	Checks      map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for the session store. Auxiliary dependencies may come up later.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupCheckTimeout)
	defer cancel()

	resp := s.runHealthChecks(ctx, func(hc HealthCheck) bool { return hc.Name == s.config.Backend })
	return writeHealth(c, resp)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Seconds(),
		"backend": s.config.Backend,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness runs every check. A failing session store makes the instance unhealthy;
// a failing auxiliary check only degrades it, since drafts can still be served.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	resp := s.runHealthChecks(ctx, func(HealthCheck) bool { return true })
	return writeHealth(c, resp)
}

func (s *Server) runHealthChecks(ctx context.Context, include func(HealthCheck) bool) healthResponse {
	resp := healthResponse{Status: "ready", Backend: s.config.Backend, Checks: make(map[string]string)}
	for _, hc := range s.healthChecks {
		if !include(hc) {
			continue
		}
		err := hc.Check(ctx)
		if err == nil {
			resp.Checks[hc.Name] = checkOK
			continue
		}

		resp.Checks[hc.Name] = err.Error()
		switch {
		case hc.Name == s.config.Backend:
			resp.Status = "unhealthy"
			resp.FailedCheck = hc.Name
		case resp.Status == "ready":
			resp.Status = "degraded"
			resp.FailedCheck = hc.Name
		}
	}
	return resp
}

func writeHealth(c echo.Context, resp healthResponse) error {
	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
