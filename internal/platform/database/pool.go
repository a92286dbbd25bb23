package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medvault/internal/platform/config"
)

// Pool wraps a *sql.DB with health checking and pool metrics.
type Pool struct {
	db      *sql.DB
	metrics *poolMetrics
}

type poolMetrics struct {
	open    prometheus.Gauge
	inUse   prometheus.Gauge
	idle    prometheus.Gauge
	waitFor prometheus.Gauge
}

// New opens and pings a pgx-backed pool. Returns nil, nil when URL is empty so
// callers can fall back to in-memory stores.
func New(cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Migrate executes every *.up.sql file in fsys in lexical order. Migrations
// must be idempotent (CREATE ... IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
		if logger != nil {
			logger.InfoContext(ctx, "migration applied", "file", file)
		}
	}
	return nil
}

// RegisterMetrics exposes pool statistics on reg. Call RecordPoolStats
// periodically to refresh them.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) {
	f := promauto.With(reg)
	p.metrics = &poolMetrics{
		open: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_db_open_connections",
			Help: "Established connections, in use and idle",
		}),
		inUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_db_in_use_connections",
			Help: "Connections currently in use",
		}),
		idle: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_db_idle_connections",
			Help: "Idle connections",
		}),
		waitFor: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_db_wait_count",
			Help: "Total connections waited for",
		}),
	}
}

// RecordPoolStats copies sql.DBStats into the registered gauges.
func (p *Pool) RecordPoolStats() {
	if p == nil || p.db == nil || p.metrics == nil {
		return
	}
	stats := p.db.Stats()
	p.metrics.open.Set(float64(stats.OpenConnections))
	p.metrics.inUse.Set(float64(stats.InUse))
	p.metrics.idle.Set(float64(stats.Idle))
	p.metrics.waitFor.Set(float64(stats.WaitCount))
}
