package middleware

import (
	"github.com/labstack/echo/v4"
)

// apiHeaders are set on every response. The API serves JSON that may carry
// patient data, so nothing is framed, sniffed or cached.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets apiHeaders, plus Strict-Transport-Security when the
// request arrived over TLS directly or through a proxy.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if c.Scheme() == "https" {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}
