package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Stat() *pgxpool.Stat
}

// DBHealth is the body served by /health/db.
type DBHealth struct {
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Latency       string     `json:"latency,omitempty"`
	SchemaVersion int        `json:"schema_version"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

type PoolStats struct {
	Total        int32  `json:"total_conns"`
	Idle         int32  `json:"idle_conns"`
	Acquired     int32  `json:"acquired_conns"`
	Max          int32  `json:"max_conns"`
	AcquireCount int64  `json:"acquire_count"`
	AcquireWait  string `json:"acquire_duration"`
}

func statsFrom(s *pgxpool.Stat) *PoolStats {
	if s == nil {
		return nil
	}
	return &PoolStats{
		Total:        s.TotalConns(),
		Idle:         s.IdleConns(),
		Acquired:     s.AcquiredConns(),
		Max:          s.MaxConns(),
		AcquireCount: s.AcquireCount(),
		AcquireWait:  s.AcquireDuration().String(),
	}
}

// Check pings the database and reads the highest applied migration.
func Check(ctx context.Context, pool Pinger) DBHealth {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		return DBHealth{Status: "unhealthy", Error: err.Error(), Pool: statsFrom(pool.Stat())}
	}
	h := DBHealth{Status: "healthy", Latency: time.Since(start).String(), Pool: statsFrom(pool.Stat())}

	// Unmigrated databases report degraded with version 0.
	var version int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		h.Status = "degraded"
		h.Error = "schema version unavailable: " + err.Error()
	}
	h.SchemaVersion = version
	return h
}

// HealthHandler serves Check; anything but a successful ping answers 503.
func HealthHandler(pool Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := Check(c.Request().Context(), pool)
		code := http.StatusOK
		if h.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	}
}
