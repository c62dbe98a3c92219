package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	RolePatient  = "patient"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

// ValidRole reports whether r is one of the three profile roles.
func ValidRole(r string) bool {
	return r == RolePatient || r == RoleProvider || r == RoleAdmin
}

// Principal is the authenticated caller resolved to its profile. PatientID
// and ProviderID are set only for the matching role.
type Principal struct {
	AuthUserID string
	ProfileID  uuid.UUID
	Role       string
	PatientID  uuid.UUID
	ProviderID uuid.UUID
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// IsPatient reports whether the caller is the given patient.
func (p Principal) IsPatient(patientID uuid.UUID) bool {
	return p.Role == RolePatient && p.PatientID != uuid.Nil && p.PatientID == patientID
}

// IsProvider reports whether the caller is the given provider.
func (p Principal) IsProvider(providerID uuid.UUID) bool {
	return p.Role == RoleProvider && p.ProviderID != uuid.Nil && p.ProviderID == providerID
}

// WithPrincipal stores p and replaces the token roles with the profile role,
// which is authoritative once the profile is known.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	if p.Role != "" {
		ctx = context.WithValue(ctx, UserRolesKey, []string{p.Role})
	}
	return ctx
}

// PrincipalFromContext returns the resolved principal. Without one it falls
// back to the token identity with the strongest known role.
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(PrincipalKey).(Principal); ok {
		return p
	}
	p := Principal{AuthUserID: UserIDFromContext(ctx)}
	for _, r := range []string{RoleAdmin, RoleProvider, RolePatient} {
		if HasRole(ctx, r) {
			p.Role = r
			break
		}
	}
	return p
}

func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if HasRole(ctx, RoleAdmin) {
				return next(c)
			}
			for _, required := range roles {
				if HasRole(ctx, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
