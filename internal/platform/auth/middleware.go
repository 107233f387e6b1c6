package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// JWTMiddleware authenticates requests with a bearer token and stores the
// resulting Actor on the request context. WebSocket upgrades cannot set
// headers from browsers, so a "token" query parameter is accepted on those.
func JWTMiddleware(issuer *TokenIssuer, skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			actor, err := issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := WithActor(c.Request().Context(), actor)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", actor.ID.String())
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if isUpgrade(c.Request()) {
			if tok := c.QueryParam("token"); tok != "" {
				return tok, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// MustActor returns the actor set by JWTMiddleware. Handlers behind the
// middleware can rely on it being present.
func MustActor(c echo.Context) (Actor, error) {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return a, nil
}
