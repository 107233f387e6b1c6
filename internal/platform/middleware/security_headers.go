package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders marks every response as private JSON. Consultation data is
// never cached or framed, and the API origin may not use the camera or
// microphone itself; calls run in the client origin.
func SecurityHeaders() echo.MiddlewareFunc {
	headers := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"Referrer-Policy", "no-referrer"},
		{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
		{"Cache-Control", "no-store"},
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range headers {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
