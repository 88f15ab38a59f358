package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/database"
	"github.com/posiek07/extensions/internal/sqlgen"
)

// MaterializationError reports a create/replace the target store rejected.
// It is fatal to the affected schema only; the batch runner keeps going.
type MaterializationError struct {
	View string
	Err  error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("failed to materialize view %q: %v", e.View, e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// ViewRepository owns the lifecycle of generated views: create if absent,
// replace if the definition changed, no-op if identical. It never touches the
// raw changelog table. The registry table records the SQL last materialized
// per view so an unchanged schema produces zero DDL on re-runs.
type ViewRepository struct {
	dbManager database.DatabaseManager
	names     sqlgen.Names
	logger    logrus.FieldLogger
}

// NewViewRepository creates a new ViewRepository.
func NewViewRepository(dbManager database.DatabaseManager, names sqlgen.Names, logger logrus.FieldLogger) *ViewRepository {
	return &ViewRepository{
		dbManager: dbManager,
		names:     names,
		logger:    logger,
	}
}

// IsHealthy checks if the repository is healthy
func (r *ViewRepository) IsHealthy(ctx context.Context) bool {
	return r.dbManager.IsHealthy(ctx)
}

// EnsureRegistry creates the registry table if it does not exist yet.
func (r *ViewRepository) EnsureRegistry(ctx context.Context) error {
	tmpl, err := r.dbManager.GetQuery("EnsureViewRegistry")
	if err != nil {
		return err
	}
	if _, err := r.dbManager.ExecuteSQL(ctx, fmt.Sprintf(tmpl, r.registryTable())); err != nil {
		return fmt.Errorf("failed to ensure view registry: %w", err)
	}
	return nil
}

// Materialize brings one generated view to the desired definition. The DDL
// and the registry update run in one transaction so a view is never left
// half-created.
func (r *ViewRepository) Materialize(ctx context.Context, view sqlgen.ViewDefinition) error {
	current, found, err := r.registeredSQL(ctx, view.Name)
	if err != nil {
		return &MaterializationError{View: view.Name, Err: err}
	}

	if found && current == view.SQL {
		exists, err := r.viewExists(ctx, view.Name)
		if err != nil {
			return &MaterializationError{View: view.Name, Err: err}
		}
		if exists {
			r.logger.WithField("view", view.Name).Debug("View definition unchanged, skipping")
			return nil
		}
		// Registry row without a backing view: the database was recreated or
		// the view dropped out of band. Fall through and recreate it.
	}

	createTmpl, err := r.dbManager.GetQuery("CreateOrReplaceView")
	if err != nil {
		return &MaterializationError{View: view.Name, Err: err}
	}
	upsertTmpl, err := r.dbManager.GetQuery("UpsertRegisteredView")
	if err != nil {
		return &MaterializationError{View: view.Name, Err: err}
	}

	ddl := fmt.Sprintf(createTmpl, r.names.Qualify(view.Name), view.SQL)
	upsert := fmt.Sprintf(upsertTmpl, r.registryTable())

	err = r.dbManager.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsert, view.Name, view.SQL, time.Now().UTC()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return &MaterializationError{View: view.Name, Err: err}
	}

	r.logger.WithFields(logrus.Fields{
		"view":    view.Name,
		"replace": found,
	}).Info("View materialized")
	return nil
}

// DropView removes a generated view and its registry row. Never called by the
// batch runner; kept for operator tooling.
func (r *ViewRepository) DropView(ctx context.Context, viewName string) error {
	dropTmpl, err := r.dbManager.GetQuery("DropView")
	if err != nil {
		return err
	}
	deleteTmpl, err := r.dbManager.GetQuery("DeleteRegisteredView")
	if err != nil {
		return err
	}

	err = r.dbManager.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(dropTmpl, r.names.Qualify(viewName))); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(deleteTmpl, r.registryTable()), viewName); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to drop view %q: %w", viewName, err)
	}

	r.logger.WithField("view", viewName).Info("View dropped")
	return nil
}

// registeredSQL returns the SQL recorded for the view, if any.
func (r *ViewRepository) registeredSQL(ctx context.Context, viewName string) (string, bool, error) {
	tmpl, err := r.dbManager.GetQuery("GetRegisteredViewSQL")
	if err != nil {
		return "", false, err
	}

	var viewSQL string
	row := r.dbManager.QueryRowSQL(ctx, fmt.Sprintf(tmpl, r.registryTable()), viewName)
	if err := row.Scan(&viewSQL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read view registry: %w", err)
	}
	return viewSQL, true, nil
}

// viewExists reports whether the view is present in the database catalog.
func (r *ViewRepository) viewExists(ctx context.Context, viewName string) (bool, error) {
	query, err := r.dbManager.GetQuery("CountView")
	if err != nil {
		return false, err
	}

	var count int
	row := r.dbManager.QueryRowSQL(ctx, query, r.names.CatalogSchema(), viewName)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check view existence: %w", err)
	}
	return count > 0, nil
}

func (r *ViewRepository) registryTable() string {
	return r.names.Qualify(r.names.ViewRegistryTable())
}
