package sqlgen

import "strings"

// Names derives every generated object name from the configured dataset and
// table prefix. Naming is a pure function of its inputs so that recompiling a
// schema always targets the same objects and replace stays idempotent.
type Names struct {
	// Dataset is the target schema inside the database; empty means the
	// connection default.
	Dataset string
	// TablePrefix namespaces every generated object, mirroring the prefix of
	// the raw changelog table.
	TablePrefix string
}

// RawChangelogTable is the append-only log the views read from. The table is
// owned by the change-recording collaborator; the compiler only references it.
func (n Names) RawChangelogTable() string {
	return n.TablePrefix + "_raw_changelog"
}

// ChangelogView names the typed per-row view for one schema.
func (n Names) ChangelogView(schemaName string) string {
	return n.TablePrefix + "_schema_" + schemaName + "_changelog"
}

// LatestView names the deduplicated snapshot view for one schema.
func (n Names) LatestView(schemaName string) string {
	return n.TablePrefix + "_schema_" + schemaName + "_latest"
}

// ViewRegistryTable names the bookkeeping table that records the SQL last
// materialized per view.
func (n Names) ViewRegistryTable() string {
	return n.TablePrefix + "_view_registry"
}

// CatalogSchema is the schema name generated objects live under in the
// database catalog: the configured dataset, or DuckDB's default otherwise.
func (n Names) CatalogSchema() string {
	if n.Dataset == "" {
		return "main"
	}
	return n.Dataset
}

// Qualify renders an object name with the dataset qualifier when one is
// configured.
func (n Names) Qualify(name string) string {
	if n.Dataset == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(n.Dataset) + "." + QuoteIdent(name)
}

// QuoteIdent double-quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString renders a SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
