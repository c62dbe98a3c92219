package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer authentication. The signup hook authenticates
// with its shared secret instead.
var publicPaths = map[string]bool{
	"/health":                   true,
	"/health/db":                true,
	"/metrics":                  true,
	"/api/v1/auth/hooks/signup": true,
}

func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
