package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// AuditEntry records who touched which medical resource.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	SubjectID  string
	Action     string
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// auditedResources are the /api/v1 collections that carry medical data.
var auditedResources = map[string]bool{
	"chat":          true,
	"records":       true,
	"patients":      true,
	"prescriptions": true,
	"sos":           true,
}

// Audit emits a "phi_access" log line for every request against a medical
// resource, after the handler has run so the status is known.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource := resourceOf(req.URL.Path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Resource:   resource,
				SubjectID:  subjectOf(req.URL.Path),
				Action:     actionOf(req.Method),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				entry.UserID = actor.ID.String()
				entry.Role = string(actor.Role)
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			if err != nil {
				entry.StatusCode = apperr.Status(err)
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("subject_id", entry.SubjectID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func segments(path string) []string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return nil
	}
	return strings.Split(strings.Trim(rest, "/"), "/")
}

func resourceOf(path string) string {
	if s := segments(path); len(s) > 0 {
		return s[0]
	}
	return ""
}

// subjectOf returns the id following the collection name, if any.
func subjectOf(path string) string {
	if s := segments(path); len(s) > 1 {
		return s[1]
	}
	return ""
}

func actionOf(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
