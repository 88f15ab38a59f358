// cmd/schema-views/main.go
//
// Batch entry point: load the declared schemas, compile each one into its
// changelog and latest views, and materialize them in the target database.
// Exits non-zero if any schema failed validation, compilation, or
// materialization; every schema is attempted regardless.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/config"
	"github.com/posiek07/extensions/internal/container"
	"github.com/posiek07/extensions/internal/schema"
)

var (
	dbPath      = flag.String("db", "", "Path to the DuckDB database file")
	dataset     = flag.String("dataset", "", "Target schema inside the database")
	tablePrefix = flag.String("prefix", "", "Prefix of the raw changelog table and generated views")
	schemaDir   = flag.String("schema-dir", "", "Directory of schema definition files")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}
	applyFlags(cfg)

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal("Invalid log level")
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	logger.Info("Schema view generation starting...")

	loader, err := schema.NewLoader(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize schema loader: %v", err)
	}
	schemas, loadErrs, err := loader.LoadDir(cfg.SchemaDir)
	if err != nil {
		logger.Fatalf("Failed to load schemas: %v", err)
	}
	if len(schemas) == 0 && len(loadErrs) == 0 {
		logger.Fatalf("No schema definitions found in %s", cfg.SchemaDir)
	}

	ctx := context.Background()
	cnt, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer cnt.Close()

	// The raw changelog table normally exists already (the recording side
	// owns it); creating it here is idempotent and makes a fresh database
	// usable in one step.
	if err := cnt.Recorder.EnsureChangelogTable(ctx); err != nil {
		logger.Fatalf("Failed to ensure changelog table: %v", err)
	}

	result, err := cnt.Runner.Run(ctx, schemas, loadErrs)
	if err != nil {
		logger.Fatalf("Batch run failed: %v", err)
	}

	for _, failed := range result.Failed() {
		logger.WithField("schema", failed.Schema).Errorf("Schema was not materialized: %v", failed.Err)
	}

	os.Exit(result.ExitCode())
}

// applyFlags overrides environment configuration with explicit flags.
func applyFlags(cfg *config.Config) {
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *dataset != "" {
		cfg.Dataset = *dataset
	}
	if *tablePrefix != "" {
		cfg.TablePrefix = *tablePrefix
	}
	if *schemaDir != "" {
		cfg.SchemaDir = *schemaDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
}
