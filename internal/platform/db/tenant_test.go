package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		header    string
		jwtTenant *string
		want      string
	}{
		{name: "default", target: "/", want: "default"},
		{name: "query", target: "/?tenant_id=clinic_xyz", want: "clinic_xyz"},
		{name: "header", target: "/", header: "clinic_abc", want: "clinic_abc"},
		{name: "header over query", target: "/?tenant_id=q", header: "h", want: "h"},
		{name: "jwt over header", target: "/?tenant_id=q", header: "h", jwtTenant: strPtr("j"), want: "j"},
		{name: "empty jwt falls through", target: "/", header: "h", jwtTenant: strPtr(""), want: "h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			c := echo.New().NewContext(req, httptest.NewRecorder())
			if tt.jwtTenant != nil {
				c.Set("jwt_tenant_id", *tt.jwtTenant)
			}
			if got := extractTenantID(c, "default"); got != tt.want {
				t.Errorf("extractTenantID = %q, want %q", got, tt.want)
			}
		})
	}
}

func strPtr(s string) *string { return &s }

func TestTenantIDPattern(t *testing.T) {
	for input, valid := range map[string]bool{
		"abc":            true,
		"clinic_1":       true,
		"tenant_abc_123": true,
		"A1B2":           true,
		"a-b":            false,
		"a.b":            false,
		"a b":            false,
		"a/b":            false,
		"":               false,
		"'; DROP TABLE":  false,
		"tenant@1":       false,
	} {
		if got := tenantIDPattern.MatchString(input); got != valid {
			t.Errorf("tenantIDPattern.MatchString(%q) = %v, want %v", input, got, valid)
		}
	}
}

// An invalid tenant is rejected before a connection is acquired, so a nil
// pool is never touched.
func TestTenantMiddleware_RejectsInvalidTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-Tenant-ID", "bad-tenant")
	c := echo.New().NewContext(req, httptest.NewRecorder())

	err := TenantMiddleware(nil, "default")(func(echo.Context) error {
		t.Fatal("handler must not run")
		return nil
	})(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestContextAccessors(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TenantFromContext(context.Background()) != "" {
		t.Error("expected empty tenant from empty context")
	}

	wrong := context.WithValue(context.WithValue(context.Background(), DBConnKey, "not-a-conn"), TenantIDKey, 12345)
	if ConnFromContext(wrong) != nil || TenantFromContext(wrong) != "" {
		t.Error("expected zero values for wrongly typed context values")
	}

	ctx := WithTenant(context.Background(), "acme", nil)
	if TenantFromContext(ctx) != "acme" {
		t.Errorf("expected acme, got %q", TenantFromContext(ctx))
	}
}

type stubQuerier struct{ Querier }

func TestConn_PrefersContextConnection(t *testing.T) {
	stub := &stubQuerier{}
	ctx := WithTenant(context.Background(), "acme", stub)
	if q := Conn(ctx, nil); q != stub {
		t.Error("expected the connection stored in context")
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("acme"); got != "tenant_acme" {
		t.Errorf("expected tenant_acme, got %s", got)
	}
}

func TestInvalidTenantIDs(t *testing.T) {
	for _, id := range []string{"invalid-id!", "tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, ""); err == nil {
			t.Errorf("CreateTenantSchema(%q): expected error", id)
		}
		if err := SetSearchPath(context.Background(), nil, id); err == nil {
			t.Errorf("SetSearchPath(%q): expected error", id)
		}
	}
}
