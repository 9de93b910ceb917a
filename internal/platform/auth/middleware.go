package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
)

type contextKey string

const (
	SubjectKey contextKey = "auth_subject"
	RoleKey    contextKey = "auth_role"
)

// ErrNotAuthorized is returned for a missing, malformed or expired token.
var ErrNotAuthorized = apperr.New(apperr.KindUnauthorized, "Not Authorized Login Again")

// legacyHeaders lists the per-role headers older clients send the raw token in.
var legacyHeaders = map[Role]string{
	RoleUser:   "token",
	RoleDoctor: "dtoken",
	RoleAdmin:  "atoken",
}

// Authenticate verifies the request token and stores the subject and role on
// the request context. It reads "Authorization: Bearer <token>" first and then
// the legacy header of each role in roles.
func Authenticate(issuer *TokenIssuer, roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := extractToken(c, roles)
			if tokenStr == "" {
				return ErrNotAuthorized
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				return ErrNotAuthorized
			}

			c.Set("actor_id", claims.Subject)
			ctx := WithIdentity(c.Request().Context(), claims.Subject, claims.Role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func extractToken(c echo.Context, roles []Role) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	for _, role := range roles {
		if tok := c.Request().Header.Get(legacyHeaders[role]); tok != "" {
			return tok
		}
	}
	return ""
}

// WithIdentity returns ctx carrying an authenticated subject and role.
func WithIdentity(ctx context.Context, subject string, role Role) context.Context {
	ctx = context.WithValue(ctx, SubjectKey, subject)
	return context.WithValue(ctx, RoleKey, role)
}

func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(SubjectKey).(string)
	return sub
}

func RoleFromContext(ctx context.Context) Role {
	role, _ := ctx.Value(RoleKey).(Role)
	return role
}
