// Package config holds the explicit process configuration. There is no
// ambient global state: main builds one Config and threads it into the
// container and every downstream component.
package config

import (
	"fmt"
	"regexp"

	"github.com/caarlos0/env/v11"
)

// Config describes one batch run.
type Config struct {
	// DatabasePath is the DuckDB database file; empty opens an in-memory
	// database (only useful for tests).
	DatabasePath string `env:"SCHEMA_VIEWS_DB"`
	// Dataset is the target schema inside the database. Empty uses the
	// connection default.
	Dataset string `env:"SCHEMA_VIEWS_DATASET"`
	// TablePrefix namespaces the raw changelog table and every generated
	// view.
	TablePrefix string `env:"SCHEMA_VIEWS_TABLE_PREFIX"`
	// SchemaDir holds one <schemaName>.json definition file per schema.
	SchemaDir string `env:"SCHEMA_VIEWS_SCHEMA_DIR"`
	// LogLevel is a logrus level name.
	LogLevel string `env:"SCHEMA_VIEWS_LOG_LEVEL" envDefault:"info"`
}

// FromEnv builds a Config from the environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the fields every run requires.
func (c *Config) Validate() error {
	if c.TablePrefix == "" {
		return fmt.Errorf("table prefix is required")
	}
	if !prefixPattern.MatchString(c.TablePrefix) {
		return fmt.Errorf("table prefix %q is not a valid identifier", c.TablePrefix)
	}
	if c.Dataset != "" && !prefixPattern.MatchString(c.Dataset) {
		return fmt.Errorf("dataset %q is not a valid identifier", c.Dataset)
	}
	if c.SchemaDir == "" {
		return fmt.Errorf("schema directory is required")
	}
	return nil
}
