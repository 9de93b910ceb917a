package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// mediaPrefix is where uploaded images are served.
const mediaPrefix = "/media/"

// SecurityHeaders sets the response headers a JSON API should always send.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "0")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Uploaded media is served from the same origin and may be cached.
			if !isMediaPath(c.Request().URL.Path) {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
				h.Set("Cache-Control", "no-store")
			}

			return next(c)
		}
	}
}

func isMediaPath(path string) bool {
	return strings.HasPrefix(path, mediaPrefix)
}
