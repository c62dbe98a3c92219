package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthReport is the /health/db response body.
type HealthReport struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

const healthPingTimeout = 5 * time.Second

// HealthHandler pings the database and reports pool statistics. It answers
// 503 when the ping fails.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(pool.Ping, func() *PoolStats { return GetPoolStats(pool) })
}

func healthHandler(ping func(context.Context) error, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		report := HealthReport{Status: "healthy", Pool: stats()}
		if err := ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
