package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HookSecretHeader carries the shared secret on identity-provider callbacks.
const HookSecretHeader = "X-Hook-Secret"

// RequireHookSecret authenticates server-to-server callbacks. An empty secret
// rejects every request.
func RequireHookSecret(secret string) echo.MiddlewareFunc {
	want := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(HookSecretHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid hook secret")
			}
			return next(c)
		}
	}
}
