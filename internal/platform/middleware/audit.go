package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
)

// AuditEntry records who touched which patient data, when and from where.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	ResourceType string
	PatientID    string
	Action       string
	IPAddress    string
	UserAgent    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// Audit logs a type=phi_access line for every /api/v1 request after the
// handler has run, so the entry carries the final status.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c, err)
			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource_type", entry.ResourceType).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context, err error) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	entry := AuditEntry{
		Timestamp:    time.Now().UTC(),
		Path:         req.URL.Path,
		Method:       req.Method,
		IPAddress:    c.RealIP(),
		UserAgent:    req.UserAgent(),
		StatusCode:   c.Response().Status,
		UserID:       auth.UserIDFromContext(ctx),
		UserRoles:    auth.RolesFromContext(ctx),
		Action:       httpMethodToAction(req.Method, req.URL.Path),
		ResourceType: extractResourceType(req.URL.Path),
		PatientID:    extractPatientID(c),
	}
	if he, ok := err.(*echo.HTTPError); ok {
		entry.StatusCode = he.Code
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	return entry
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

// httpMethodToAction maps a request to read/create/update/delete. RPC
// procedures are POSTs but are classified by name.
func httpMethodToAction(method, path string) string {
	if strings.HasPrefix(path, "/api/v1/rpc/") {
		if strings.HasPrefix(strings.TrimPrefix(path, "/api/v1/rpc/"), "get_") {
			return "read"
		}
		return "create"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractResourceType returns the first path segment under /api/v1, or the
// procedure name for RPC calls:
//
//	/api/v1/patients/123                    -> patients
//	/api/v1/rpc/get_all_patients_for_admin  -> rpc.get_all_patients_for_admin
func extractResourceType(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown"
	}
	if segments[0] == "rpc" && len(segments) > 1 && segments[1] != "" {
		return "rpc." + segments[1]
	}
	return segments[0]
}

// extractPatientID looks for a patient id in /api/v1/patients/<id>, a
// :patient_id route param, or a patient_id query param.
func extractPatientID(c echo.Context) string {
	path := c.Request().URL.Path
	if strings.HasPrefix(path, "/api/v1/patients/") {
		segments := strings.Split(strings.TrimPrefix(path, "/api/v1/patients/"), "/")
		if isUUIDLike(segments[0]) {
			return segments[0]
		}
	}
	if id := c.Param("patient_id"); isUUIDLike(id) {
		return id
	}
	if id := c.QueryParam("patient_id"); isUUIDLike(id) {
		return id
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
