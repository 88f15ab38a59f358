// Package container wires the components of one batch process together.
package container

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/changelog"
	"github.com/posiek07/extensions/internal/config"
	"github.com/posiek07/extensions/internal/database"
	"github.com/posiek07/extensions/internal/database/repositories"
	"github.com/posiek07/extensions/internal/runner"
	"github.com/posiek07/extensions/internal/sqlgen"
)

// Container holds the wired components.
type Container struct {
	Logger   *logrus.Logger
	DB       *database.Manager
	Views    *repositories.ViewRepository
	Recorder *changelog.SQLRecorder
	Runner   *runner.Runner
}

// New validates the configuration and builds every component against one
// database connection.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewManager(cfg.DatabasePath, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	names := sqlgen.Names{Dataset: cfg.Dataset, TablePrefix: cfg.TablePrefix}

	if cfg.Dataset != "" {
		tmpl, err := db.GetQuery("EnsureDataset")
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.ExecuteSQL(ctx, fmt.Sprintf(tmpl, sqlgen.QuoteIdent(cfg.Dataset))); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure dataset %q: %w", cfg.Dataset, err)
		}
	}

	views := repositories.NewViewRepository(db, names, logger)
	compiler := sqlgen.NewCompiler(names, logger)

	return &Container{
		Logger:   logger,
		DB:       db,
		Views:    views,
		Recorder: changelog.NewSQLRecorder(db, names, logger),
		Runner:   runner.New(compiler, views, logger),
	}, nil
}

// Close releases the container's resources.
func (c *Container) Close() error {
	return c.DB.Close()
}
