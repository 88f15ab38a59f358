package database

import (
	"context"
	"database/sql"
)

// DatabaseManager defines the interface for centralized database access.
// Repositories and the changelog recorder depend on this rather than the
// concrete Manager so tests can substitute a mocked connection.
type DatabaseManager interface {
	// Query management
	GetQuery(name string) (string, error)
	ListQueries() []string

	// Statement execution
	ExecuteSQL(ctx context.Context, query string, args ...any) (sql.Result, error)
	QuerySQL(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowSQL(ctx context.Context, query string, args ...any) *sql.Row

	// Transaction operations
	Transaction(ctx context.Context, fn func(*sql.Tx) error) error

	// Health and monitoring
	IsHealthy(ctx context.Context) bool
	GetQueryStats() map[string]*QueryStats

	// Connection management
	Close() error
	GetConnection() *sql.DB
}
