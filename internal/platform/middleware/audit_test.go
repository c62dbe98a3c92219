package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
)

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func auditLine(t *testing.T, buf *strings.Builder) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("failed to parse audit line %q: %v", buf.String(), err)
	}
	return m
}

func TestAudit_PatientRead(t *testing.T) {
	var buf strings.Builder
	patientID := uuid.New().String()
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients/"+patientID, withAuth("user-1", []string{auth.RoleProvider}))
	c.Set("request_id", "req-9")

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := auditLine(t, &buf)
	checks := map[string]string{
		"type":          "phi_access",
		"user_id":       "user-1",
		"resource_type": "patients",
		"patient_id":    patientID,
		"action":        "read",
		"request_id":    "req-9",
	}
	for k, v := range checks {
		if line[k] != v {
			t.Errorf("%s = %v, want %s", k, line[k], v)
		}
	}
	if line["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", line["status"])
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	var buf strings.Builder
	c, _ := newTestContext(http.MethodPost, "/api/v1/rpc/assign_patient_to_provider")

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "duplicate")
	}
	_ = Audit(zerolog.New(&buf))(handler)(c)

	line := auditLine(t, &buf)
	if line["status"] != float64(http.StatusConflict) {
		t.Errorf("expected 409, got %v", line["status"])
	}
	if line["resource_type"] != "rpc.assign_patient_to_provider" {
		t.Errorf("unexpected resource type %v", line["resource_type"])
	}
	if line["action"] != "create" {
		t.Errorf("expected create, got %v", line["action"])
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	var buf strings.Builder
	for _, path := range []string{"/health", "/metrics", "/health/db"} {
		c, _ := newTestContext(http.MethodGet, path)
		_ = Audit(zerolog.New(&buf))(okHandler)(c)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no audit output, got %s", buf.String())
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/me", "read"},
		{http.MethodPost, "/api/v1/appointments", "create"},
		{http.MethodPut, "/api/v1/profiles/1", "update"},
		{http.MethodPatch, "/api/v1/appointments/1/status", "update"},
		{http.MethodDelete, "/api/v1/providers/1/schedule-blocks/2", "delete"},
		{http.MethodPost, "/api/v1/rpc/get_available_slots_for_provider", "read"},
		{http.MethodPost, "/api/v1/rpc/assign_patient_to_provider", "create"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method, tt.path); got != tt.want {
			t.Errorf("httpMethodToAction(%s, %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestExtractResourceType(t *testing.T) {
	tests := map[string]string{
		"/api/v1/patients":                       "patients",
		"/api/v1/patients/123":                   "patients",
		"/api/v1/rpc/get_all_patients_for_admin": "rpc.get_all_patients_for_admin",
		"/api/v1/rpc/":                           "rpc",
		"/api/v1/":                               "unknown",
	}
	for path, want := range tests {
		if got := extractResourceType(path); got != want {
			t.Errorf("extractResourceType(%s) = %s, want %s", path, got, want)
		}
	}
}

func TestExtractPatientID(t *testing.T) {
	id := uuid.New().String()

	c, _ := newTestContext(http.MethodGet, "/api/v1/appointments?patient_id="+id)
	if got := extractPatientID(c); got != id {
		t.Errorf("expected id from query, got %q", got)
	}

	c, _ = newTestContext(http.MethodGet, "/api/v1/patients/not-a-uuid")
	if got := extractPatientID(c); got != "" {
		t.Errorf("expected empty id for non-uuid path, got %q", got)
	}

	c, _ = newTestContext(http.MethodGet, "/api/v1/assignments/patient/"+id)
	c.SetParamNames("patient_id")
	c.SetParamValues(id)
	if got := extractPatientID(c); got != id {
		t.Errorf("expected id from route param, got %q", got)
	}
}

func TestIsUUIDLike(t *testing.T) {
	if !isUUIDLike(uuid.New().String()) {
		t.Error("expected uuid to be accepted")
	}
	for _, s := range []string{"", "abc", "123"} {
		if isUUIDLike(s) {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}
