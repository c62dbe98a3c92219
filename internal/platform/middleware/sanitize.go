package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxHeaderValueSize = 8192

var (
	// Logged only; queries are parameterized.
	sqlPatterns = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script payloads in query parameters with 400.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if reason := screenRequest(req, func(param string) {
				logger.Warn().
					Str("param", param).
					Str("path", req.URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("suspicious query parameter")
			}); reason != "" {
				return echo.NewHTTPError(http.StatusBadRequest, reason)
			}
			return next(c)
		}
	}
}

// screenRequest returns why req must be rejected, or "". suspicious is
// called for SQL-looking query values, which are let through.
func screenRequest(req *http.Request, suspicious func(param string)) string {
	paths := []string{req.URL.Path, req.URL.EscapedPath()}
	for _, p := range paths {
		if containsPathTraversal(p) {
			return "path traversal detected"
		}
		if containsNullByte(p) {
			return "null byte in path"
		}
	}

	for name, values := range req.Header {
		for _, v := range values {
			switch {
			case len(v) > maxHeaderValueSize:
				return "header value too large: " + name
			case strings.ContainsAny(v, "\r\n"):
				return "header injection detected: " + name
			}
		}
	}

	for key, values := range req.URL.Query() {
		for _, v := range values {
			switch {
			case containsNullByte(key) || containsNullByte(v):
				return "null byte in query parameter"
			case scriptPatterns.MatchString(key) || scriptPatterns.MatchString(v):
				return "script content in query parameter"
			case sqlPatterns.MatchString(v):
				suspicious(key)
			}
		}
	}
	return ""
}

func containsPathTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

// CleanText strips null bytes and control characters other than newline, carriage return
// and tab, then trims surrounding whitespace. Free-text fields such as
// cancellation reasons and decision notes pass through it before storage.
func CleanText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
