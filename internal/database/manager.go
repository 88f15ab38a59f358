package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"
)

//go:embed queries/*.sql
var queryFiles embed.FS

// Manager provides centralized access to the target DuckDB database. Fixed
// statements live as named queries in embedded SQL files; view DDL is
// generated at runtime and goes through the *SQL methods.
type Manager struct {
	db         *sql.DB
	logger     logrus.FieldLogger
	dbPath     string
	queries    map[string]string
	mu         sync.RWMutex
	queryStats map[string]*QueryStats
	statsMu    sync.RWMutex
}

// QueryStats tracks performance metrics for queries
type QueryStats struct {
	Count         int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
	LastExecuted  time.Time
	ErrorCount    int64
}

// Config holds database manager configuration
type Config struct {
	MaxOpenConns int
	QueryTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns: 4,
		QueryTimeout: 30 * time.Second,
	}
}

// NewManager opens the DuckDB database at dbPath. An empty path opens an
// in-memory database.
func NewManager(dbPath string, logger logrus.FieldLogger, config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == "" {
		// Every pooled connection to an unnamed in-memory database gets its
		// own instance, so the pool must stay at one connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager, err := NewManagerWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	manager.dbPath = dbPath
	logger.WithField("db_path", dbPath).Info("Database connection established")
	return manager, nil
}

// NewManagerWithDB wraps an already-open connection. Used by tests and by
// callers that manage the connection lifecycle themselves.
func NewManagerWithDB(db *sql.DB, logger logrus.FieldLogger) (*Manager, error) {
	manager := &Manager{
		db:         db,
		logger:     logger,
		queries:    make(map[string]string),
		queryStats: make(map[string]*QueryStats),
	}
	if err := manager.loadQueries(); err != nil {
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return manager, nil
}

// loadQueries loads all SQL queries from embedded files
func (m *Manager) loadQueries() error {
	entries, err := queryFiles.ReadDir("queries")
	if err != nil {
		return fmt.Errorf("failed to read queries directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		filename := entry.Name()
		content, err := queryFiles.ReadFile("queries/" + filename)
		if err != nil {
			return fmt.Errorf("failed to read query file %s: %w", filename, err)
		}

		for name, query := range parseNamedQueries(string(content)) {
			if _, exists := m.queries[name]; exists {
				return fmt.Errorf("duplicate query name '%s' in file %s", name, filename)
			}
			m.queries[name] = query
		}
	}

	m.logger.WithField("query_count", len(m.queries)).Debug("SQL queries loaded")
	return nil
}

// GetQuery retrieves a named query. Several queries are templates that take
// object names via fmt.Sprintf before execution, since generated tables and
// views are named at runtime from the configured prefix.
func (m *Manager) GetQuery(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query, exists := m.queries[name]
	if !exists {
		return "", fmt.Errorf("query '%s' not found", name)
	}
	return query, nil
}

// ExecuteSQL runs a statement.
func (m *Manager) ExecuteSQL(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()

	result, err := m.db.ExecContext(ctx, query, args...)
	m.recordQueryStats("exec", time.Since(start), err)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"duration": time.Since(start),
		}).Error("Statement execution failed")
		return nil, err
	}

	m.logger.WithField("duration", time.Since(start)).Debug("Statement executed")
	return result, nil
}

// QuerySQL runs a query and returns rows.
func (m *Manager) QuerySQL(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()

	rows, err := m.db.QueryContext(ctx, query, args...)
	m.recordQueryStats("query", time.Since(start), err)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"duration": time.Since(start),
		}).Error("Query failed")
		return nil, err
	}
	return rows, nil
}

// QueryRowSQL runs a query and returns a single row.
func (m *Manager) QueryRowSQL(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := m.db.QueryRowContext(ctx, query, args...)
	m.recordQueryStats("query_row", time.Since(start), nil)
	return row
}

// Transaction provides a database transaction with proper cleanup
func (m *Manager) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// recordQueryStats tracks query performance metrics
func (m *Manager) recordQueryStats(kind string, duration time.Duration, err error) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats, exists := m.queryStats[kind]
	if !exists {
		stats = &QueryStats{}
		m.queryStats[kind] = stats
	}

	stats.Count++
	stats.TotalDuration += duration
	stats.AvgDuration = stats.TotalDuration / time.Duration(stats.Count)
	stats.LastExecuted = time.Now()

	if err != nil {
		stats.ErrorCount++
	}
}

// GetQueryStats returns performance statistics grouped by statement kind.
func (m *Manager) GetQueryStats() map[string]*QueryStats {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()

	stats := make(map[string]*QueryStats)
	for name, stat := range m.queryStats {
		stats[name] = &QueryStats{
			Count:         stat.Count,
			TotalDuration: stat.TotalDuration,
			AvgDuration:   stat.AvgDuration,
			LastExecuted:  stat.LastExecuted,
			ErrorCount:    stat.ErrorCount,
		}
	}
	return stats
}

// IsHealthy verifies database connectivity.
func (m *Manager) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.db.PingContext(ctx) == nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		err := m.db.Close()
		m.logger.Info("Database connection closed")
		return err
	}
	return nil
}

// GetConnection returns the underlying database connection (use with caution)
func (m *Manager) GetConnection() *sql.DB {
	return m.db
}

// ListQueries returns all available query names
func (m *Manager) ListQueries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queries := make([]string, 0, len(m.queries))
	for name := range m.queries {
		queries = append(queries, name)
	}
	return queries
}
