package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posiek07/extensions/internal/database"
	"github.com/posiek07/extensions/internal/sqlgen"
)

const (
	registryLookup = `SELECT view_sql FROM "fs_view_registry" WHERE view_name = ?`
	catalogLookup  = `SELECT count(*) FROM duckdb_views() WHERE schema_name = ? AND view_name = ? AND NOT internal`
	registryUpsert = "INSERT OR REPLACE INTO \"fs_view_registry\" (view_name, view_sql, updated_at)\nVALUES (?, ?, ?)"
)

func newTestRepo(t *testing.T) (*ViewRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	manager, err := database.NewManagerWithDB(db, logger)
	require.NoError(t, err)

	names := sqlgen.Names{TablePrefix: "fs"}
	return NewViewRepository(manager, names, logger), mock
}

func TestMaterialize_CreatesNewView(t *testing.T) {
	repo, mock := newTestRepo(t)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_changelog", SQL: "SELECT 1"}

	mock.ExpectQuery(registryLookup).WithArgs(view.Name).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE OR REPLACE VIEW \"fs_schema_orders_changelog\" AS\nSELECT 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(registryUpsert).
		WithArgs(view.Name, view.SQL, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Materialize(context.Background(), view))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_UnchangedIsNoOp(t *testing.T) {
	repo, mock := newTestRepo(t)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_changelog", SQL: "SELECT 1"}

	mock.ExpectQuery(registryLookup).WithArgs(view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"view_sql"}).AddRow(view.SQL))
	mock.ExpectQuery(catalogLookup).WithArgs("main", view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, repo.Materialize(context.Background(), view))
	// No Begin/Exec expectations: an unchanged view must produce zero DDL.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_RecreatesWhenViewMissing(t *testing.T) {
	repo, mock := newTestRepo(t)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_changelog", SQL: "SELECT 1"}

	// Registry says up to date, but the catalog lost the view.
	mock.ExpectQuery(registryLookup).WithArgs(view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"view_sql"}).AddRow(view.SQL))
	mock.ExpectQuery(catalogLookup).WithArgs("main", view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE OR REPLACE VIEW \"fs_schema_orders_changelog\" AS\nSELECT 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(registryUpsert).
		WithArgs(view.Name, view.SQL, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Materialize(context.Background(), view))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_CatalogCheckScopedToDataset(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	manager, err := database.NewManagerWithDB(db, logger)
	require.NoError(t, err)

	repo := NewViewRepository(manager, sqlgen.Names{Dataset: "analytics", TablePrefix: "fs"}, logger)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_changelog", SQL: "SELECT 1"}

	// A same-named view in another schema must not satisfy the check; the
	// lookup is bound to the configured dataset.
	mock.ExpectQuery(`SELECT view_sql FROM "analytics"."fs_view_registry" WHERE view_name = ?`).
		WithArgs(view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"view_sql"}).AddRow(view.SQL))
	mock.ExpectQuery(catalogLookup).WithArgs("analytics", view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE OR REPLACE VIEW \"analytics\".\"fs_schema_orders_changelog\" AS\nSELECT 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT OR REPLACE INTO \"analytics\".\"fs_view_registry\" (view_name, view_sql, updated_at)\nVALUES (?, ?, ?)").
		WithArgs(view.Name, view.SQL, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Materialize(context.Background(), view))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_ReplacesChangedDefinition(t *testing.T) {
	repo, mock := newTestRepo(t)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_changelog", SQL: "SELECT 2"}

	mock.ExpectQuery(registryLookup).WithArgs(view.Name).
		WillReturnRows(sqlmock.NewRows([]string{"view_sql"}).AddRow("SELECT 1"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE OR REPLACE VIEW \"fs_schema_orders_changelog\" AS\nSELECT 2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(registryUpsert).
		WithArgs(view.Name, view.SQL, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Materialize(context.Background(), view))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_StoreRejectionIsMaterializationError(t *testing.T) {
	repo, mock := newTestRepo(t)
	view := sqlgen.ViewDefinition{Name: "fs_schema_orders_latest", SQL: "SELECT broken"}

	mock.ExpectQuery(registryLookup).WithArgs(view.Name).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE OR REPLACE VIEW \"fs_schema_orders_latest\" AS\nSELECT broken").
		WillReturnError(errors.New("Binder Error: broken"))
	mock.ExpectRollback()

	err := repo.Materialize(context.Background(), view)
	require.Error(t, err)

	var merr *MaterializationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "fs_schema_orders_latest", merr.View)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropView(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP VIEW IF EXISTS "fs_schema_orders_latest"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "fs_view_registry" WHERE view_name = ?`).
		WithArgs("fs_schema_orders_latest").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DropView(context.Background(), "fs_schema_orders_latest"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
