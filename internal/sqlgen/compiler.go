// Package sqlgen compiles declared schemas into the SQL text of the two
// generated views per schema: a typed per-row changelog view over the raw log
// table, and a latest-snapshot view that keeps each record's chronologically
// last row and drops tombstoned records. Generation is pure and
// deterministic: identical input always yields byte-identical SQL.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/schema"
)

// metadataColumns are carried unchanged from the raw log table into every
// generated view, ahead of the declared fields.
var metadataColumns = []string{
	"timestamp",
	"event_id",
	"document_name",
	"document_id",
	"operation",
	"partition_value",
}

// ViewDefinition is one generated view: its bare object name and the SELECT
// body it is defined as.
type ViewDefinition struct {
	Name string
	SQL  string
}

// CompiledSchema holds both views generated for one schema. The changelog
// view must be materialized before the latest view, which reads from it.
type CompiledSchema struct {
	SchemaName string
	Changelog  ViewDefinition
	Latest     ViewDefinition
}

// Compiler turns validated schemas into view SQL.
type Compiler struct {
	names  Names
	logger logrus.FieldLogger
}

func NewCompiler(names Names, logger logrus.FieldLogger) *Compiler {
	return &Compiler{names: names, logger: logger}
}

// Compile generates both view definitions for one schema. The schema must
// already have passed Validate; compilation failures indicate generator bugs
// and surface as *CompilationError.
func (c *Compiler) Compile(s *schema.Schema) (*CompiledSchema, error) {
	changelogSQL, err := c.changelogSelect(s)
	if err != nil {
		var cerr *CompilationError
		if errors.As(err, &cerr) {
			cerr.Schema = s.Name
		}
		return nil, err
	}

	compiled := &CompiledSchema{
		SchemaName: s.Name,
		Changelog: ViewDefinition{
			Name: c.names.ChangelogView(s.Name),
			SQL:  changelogSQL,
		},
		Latest: ViewDefinition{
			Name: c.names.LatestView(s.Name),
			SQL:  c.latestSelect(s),
		},
	}

	c.logger.WithFields(logrus.Fields{
		"schema":         s.Name,
		"changelog_view": compiled.Changelog.Name,
		"latest_view":    compiled.Latest.Name,
	}).Debug("Schema compiled")

	return compiled, nil
}

// changelogSelect renders the typed per-row view: every metadata column
// followed by one typed column per declared top-level field, in declaration
// order, over the raw changelog table.
func (c *Compiler) changelogSelect(s *schema.Schema) (string, error) {
	var b strings.Builder
	b.WriteString("SELECT\n")
	for i, col := range metadataColumns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  " + QuoteIdent(col))
	}
	for _, f := range s.Fields {
		expr, err := compileField(QuoteIdent("data"), "$."+f.Name, f, 0)
		if err != nil {
			return "", err
		}
		b.WriteString(",\n  " + expr + " AS " + QuoteIdent(f.Name))
	}
	b.WriteString("\nFROM " + c.names.Qualify(c.names.RawChangelogTable()))
	return b.String(), nil
}

// latestSelect renders the snapshot view on top of the changelog view: rank
// each record's rows by (timestamp, event_id) descending, keep the first, and
// drop records whose last row is a DELETE tombstone. Ties on the full
// (timestamp, event_id) pair violate the recording contract; ROW_NUMBER still
// resolves them deterministically instead of failing.
func (c *Compiler) latestSelect(s *schema.Schema) string {
	cols := make([]string, 0, len(metadataColumns)+len(s.Fields))
	for _, col := range metadataColumns {
		cols = append(cols, "  "+QuoteIdent(col))
	}
	for _, f := range s.Fields {
		cols = append(cols, "  "+QuoteIdent(f.Name))
	}

	var b strings.Builder
	b.WriteString("SELECT\n")
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\nFROM (\n")
	b.WriteString("  SELECT\n")
	b.WriteString("    *,\n")
	b.WriteString(fmt.Sprintf("    ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC, %s DESC) AS %s\n",
		QuoteIdent("document_name"), QuoteIdent("timestamp"), QuoteIdent("event_id"), QuoteIdent("rn")))
	b.WriteString("  FROM " + c.names.Qualify(c.names.ChangelogView(s.Name)) + "\n")
	b.WriteString(") " + QuoteIdent("ranked") + "\n")
	b.WriteString("WHERE " + QuoteIdent("rn") + " = 1\n")
	b.WriteString("  AND " + QuoteIdent("operation") + " != 'DELETE'")
	return b.String()
}
