package db

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
)

// Querier is the subset of pgx shared by pools, pooled connections and
// transactions. Repositories run every statement through one.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// SchemaName returns the Postgres schema backing a tenant.
func SchemaName(tenantID string) string {
	return "tenant_" + tenantID
}

// TenantMiddleware pins one pooled connection to the request, points its
// search_path at the tenant schema and stores it in the request context.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant)

			if !tenantIDPattern.MatchString(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			if err := SetSearchPath(ctx, conn, tenantID); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = WithTenant(ctx, tenantID, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}
	return defaultTenant
}

// SetSearchPath scopes q to the tenant schema.
func SetSearchPath(ctx context.Context, q Querier, tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}
	_, err := q.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", SchemaName(tenantID)))
	return err
}

// WithTenant stores the tenant id and its scoped connection in ctx.
func WithTenant(ctx context.Context, tenantID string, q Querier) context.Context {
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	return context.WithValue(ctx, DBConnKey, q)
}

// ConnFromContext retrieves the tenant-scoped connection (or the open
// transaction) from context.
func ConnFromContext(ctx context.Context) Querier {
	q, _ := ctx.Value(DBConnKey).(Querier)
	return q
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// Conn returns the querier bound to ctx, falling back to the pool.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if q := ConnFromContext(ctx); q != nil {
		return q
	}
	return pool
}

// AcquireTenant acquires a pooled connection scoped to tenantID for work that
// runs outside an HTTP request (CLI commands). The caller must call release.
func AcquireTenant(ctx context.Context, pool *pgxpool.Pool, tenantID string) (context.Context, func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := SetSearchPath(ctx, conn, tenantID); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("set search_path: %w", err)
	}
	return WithTenant(ctx, tenantID, conn), conn.Release, nil
}

// CreateTenantSchema creates a new schema for a tenant and, when
// migrationsDir is non-empty, applies every migration to it.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, migrationsDir string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}

	schema := SchemaName(tenantID)
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrationsDir != "" {
		migrator := NewMigrator(pool, migrationsDir)
		if _, err := migrator.Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
