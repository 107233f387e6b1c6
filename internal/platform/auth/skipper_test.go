package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path   string
		public bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/v1/auth/login", true},
		{"/api/v1/auth/register", true},
		{"/api/v1/appointments", false},
		{"/ws", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.public {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.public)
			}
			if got := IsPublicPath(tt.path); got != tt.public {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.public)
			}
		})
	}
}
