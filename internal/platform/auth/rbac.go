package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
)

// RequireRole returns middleware that checks the authenticated principal has
// one of the specified roles. It must run after Authenticate.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if SubjectFromContext(ctx) == "" {
				return ErrNotAuthorized
			}
			has := RoleFromContext(ctx)
			for _, required := range roles {
				if has == required {
					return next(c)
				}
			}
			return apperr.Forbidden("required role: %s", strings.Join(names, " or "))
		}
	}
}

// Protect combines Authenticate and RequireRole for a route group.
func Protect(issuer *TokenIssuer, roles ...Role) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{Authenticate(issuer, roles...), RequireRole(roles...)}
}
