package httpserver

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/teamdraft/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

func newLimiterStore(ratePerSecond float64, burst int) *middleware.RateLimiterMemoryStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
}

// newClientLimiter limits API calls per client IP.
func newClientLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: newLimiterStore(ratePerSecond, burst),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.HandleError(c, apperrors.RateLimitedError("rate limit exceeded").WithField("client_ip", identifier))
		},
	})
}

// actorLimiter budgets mutations per actor and session. A chat bot relays every member
// from one address, so the client limiter alone lets one member starve the rest.
type actorLimiter struct {
	store middleware.RateLimiterStore
}

func newActorLimiter(ratePerSecond float64, burst int) *actorLimiter {
	return &actorLimiter{store: newLimiterStore(ratePerSecond, burst)}
}

func actorKey(sessionID, actorID string) string {
	return sessionID + "/" + strings.TrimSpace(actorID)
}

// allow spends one token of actorID's budget on sessionID.
func (l *actorLimiter) allow(sessionID, actorID string) error {
	ok, err := l.store.Allow(actorKey(sessionID, actorID))
	if err != nil {
		return apperrors.InternalError("rate limiter failed", err)
	}
	if !ok {
		return apperrors.RateLimitedError("too many actions").
			WithField("session_id", sessionID).
			WithField("actor_id", actorID)
	}
	return nil
}
