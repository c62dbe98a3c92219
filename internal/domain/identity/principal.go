package identity

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// PrincipalMiddleware resolves the verified token subject to its profile and
// stores the result with auth.WithPrincipal. Callers without a profile keep
// their token roles but carry no patient or provider id, so every ownership
// check fails closed for them.
func PrincipalMiddleware(svc *Service, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if auth.AuthSkipper(c) {
				return next(c)
			}
			ctx := c.Request().Context()
			userID := auth.UserIDFromContext(ctx)
			if userID == "" {
				return next(c)
			}
			p, err := svc.ResolvePrincipal(ctx, userID)
			switch {
			case err == nil:
				c.SetRequest(c.Request().WithContext(auth.WithPrincipal(ctx, p)))
			case errors.Is(err, ErrProfileNotFound):
				logger.Debug().Str("user_id", userID).Msg("no profile for authenticated user")
			default:
				return apperr.HTTPError(err)
			}
			return next(c)
		}
	}
}
