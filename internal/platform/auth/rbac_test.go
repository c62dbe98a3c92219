package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(contextWithRoles(RoleProvider), rec)

	if err := RequireRole(RoleProvider)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	c := e.NewContext(contextWithRoles(RolePatient), httptest.NewRecorder())

	err := RequireRole(RoleProvider)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
	if msg := err.(*echo.HTTPError).Message; msg != "required role: provider" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	c := e.NewContext(contextWithRoles(RoleAdmin), httptest.NewRecorder())

	if err := RequireRole(RoleProvider, RolePatient)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	expectStatus(t, RequireRole(RolePatient)(okHandler)(c), http.StatusForbidden)
}

func TestWithPrincipal_OverridesTokenRoles(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserRolesKey, []string{RoleAdmin})
	p := Principal{AuthUserID: "u1", ProfileID: uuid.New(), Role: RolePatient, PatientID: uuid.New()}
	ctx = WithPrincipal(ctx, p)

	if HasRole(ctx, RoleAdmin) {
		t.Error("profile role must replace token roles")
	}
	if !HasRole(ctx, RolePatient) {
		t.Error("expected patient role")
	}
	got := PrincipalFromContext(ctx)
	if got.PatientID != p.PatientID || got.ProfileID != p.ProfileID {
		t.Errorf("unexpected principal %+v", got)
	}
}

func TestPrincipalFromContext_Fallback(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "u2")
	ctx = context.WithValue(ctx, UserRolesKey, []string{"authenticated", RoleProvider, RoleAdmin})

	p := PrincipalFromContext(ctx)
	if p.AuthUserID != "u2" {
		t.Errorf("expected u2, got %s", p.AuthUserID)
	}
	if p.Role != RoleAdmin {
		t.Errorf("expected strongest role admin, got %s", p.Role)
	}
	if p.ProfileID != uuid.Nil {
		t.Error("fallback principal has no profile")
	}
}

func TestPrincipal_Ownership(t *testing.T) {
	patientID, providerID := uuid.New(), uuid.New()

	patient := Principal{Role: RolePatient, PatientID: patientID}
	if !patient.IsPatient(patientID) || patient.IsPatient(uuid.New()) {
		t.Error("patient ownership check is wrong")
	}
	if patient.IsProvider(providerID) {
		t.Error("a patient is never a provider")
	}

	provider := Principal{Role: RoleProvider, ProviderID: providerID}
	if !provider.IsProvider(providerID) || provider.IsAdmin() {
		t.Error("provider ownership check is wrong")
	}

	unresolved := Principal{Role: RolePatient}
	if unresolved.IsPatient(uuid.Nil) {
		t.Error("a principal without a patient record owns nothing")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RolePatient, RoleProvider, RoleAdmin} {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	for _, r := range []string{"", "nurse", "Admin"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if empty := UserIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string, got %s", empty)
	}
}
