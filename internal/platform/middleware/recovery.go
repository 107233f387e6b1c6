package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
)

const stackSize = 4 << 10

// Recovery turns a handler panic into a 500 and logs the stack with the
// route and caller so the failing request can be found again.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				evt := logger.Error().
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack)
				if rid, ok := c.Get("request_id").(string); ok {
					evt = evt.Str("request_id", rid)
				}
				if actor, ok := auth.ActorFromContext(c.Request().Context()); ok {
					evt = evt.Str("user_id", actor.ID.String())
				}
				evt.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
