package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/api/v1/auth/hooks/signup", true},
		{"/api/v1/me", false},
		{"/api/v1/rpc/get_available_slots_for_provider", false},
		{"/health/extra", false},
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
			if got := IsPublicPath(tt.path); got != tt.want {
				t.Errorf("IsPublicPath(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
