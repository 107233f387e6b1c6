package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit rejects request bodies larger than limit ("512K", "1M", "2G" or a
// bare byte count) with 413, whether the size is declared up front or only
// discovered while the handler reads.
func BodyLimit(limit string) echo.MiddlewareFunc {
	max := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > max {
				return tooLarge(nil)
			}

			req.Body = http.MaxBytesReader(c.Response().Writer, req.Body, max)
			err := next(c)
			// The cap wins over whatever status the handler wrapped it in.
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return tooLarge(err)
			}
			return err
		}
	}
}

func tooLarge(internal error) error {
	he := echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	if internal != nil {
		he = he.SetInternal(internal)
	}
	return he
}

// parseLimit falls back to 1 MB on empty or malformed input.
func parseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n * multiplier
}
