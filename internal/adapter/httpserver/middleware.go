package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/teamdraft/internal/platform/correlation"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware reuses a caller supplied correlation id or mints one, and echoes
// it back in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}
