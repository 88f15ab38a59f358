package sqlgen

import (
	"fmt"
	"strings"

	"github.com/posiek07/extensions/internal/schema"
)

// CompilationError reports an internal invariant violation while generating
// SQL. Schema validation runs before compilation, so hitting one of these
// means a bug in the generator, not bad user input.
type CompilationError struct {
	Schema string
	Path   string
	Msg    string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("sql generation for schema %q failed at %s: %s", e.Schema, e.Path, e.Msg)
}

// sqlTypes maps each primitive field type to the DuckDB type its extracted
// value is cast to. Numbers and timestamps go through json_extract_string on
// purpose: the payload may encode them as JSON strings, and the textual form
// casts cleanly either way. Timestamps are ISO-8601 text only; epoch-seconds
// payloads are not supported.
var sqlTypes = map[schema.FieldType]string{
	schema.TypeString:    "VARCHAR",
	schema.TypeNumber:    "DOUBLE",
	schema.TypeBoolean:   "BOOLEAN",
	schema.TypeTimestamp: "TIMESTAMP",
	schema.TypeReference: "VARCHAR",
}

// compileField renders the SQL expression extracting one field out of a JSON
// value. src is the expression holding the JSON (the payload column, or a
// lambda variable inside an array), path the JSON path relative to src, and
// depth the number of enclosing arrays, used to pick fresh lambda variables.
func compileField(src, path string, f schema.Field, depth int) (string, error) {
	if sqlType, ok := sqlTypes[f.Type]; ok {
		return fmt.Sprintf("CAST(json_extract_string(%s, %s) AS %s)", src, quoteString(path), sqlType), nil
	}

	switch f.Type {
	case schema.TypeGeopoint:
		lat := fmt.Sprintf("CAST(json_extract_string(%s, %s) AS DOUBLE)", src, quoteString(path+".latitude"))
		lng := fmt.Sprintf("CAST(json_extract_string(%s, %s) AS DOUBLE)", src, quoteString(path+".longitude"))
		return fmt.Sprintf("struct_pack(latitude := %s, longitude := %s)", lat, lng), nil

	case schema.TypeMap:
		entries := make([]string, 0, len(f.Fields))
		for _, child := range f.Fields {
			expr, err := compileField(src, path+"."+child.Name, child, depth)
			if err != nil {
				return "", err
			}
			entries = append(entries, fmt.Sprintf("%s := %s", child.Name, expr))
		}
		return "struct_pack(" + strings.Join(entries, ", ") + ")", nil

	case schema.TypeArray:
		if f.Elem == nil {
			return "", &CompilationError{Path: path, Msg: "array field has no element definition"}
		}
		v := lambdaVar(depth)
		elem, err := compileField(v, "$", *f.Elem, depth+1)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("list_transform(CAST(json_extract(%s, %s) AS JSON[]), %s -> %s)",
			src, quoteString(path), v, elem), nil

	default:
		return "", &CompilationError{Path: path, Msg: fmt.Sprintf("unhandled field type %q", f.Type)}
	}
}

// lambdaVar picks the list_transform variable for one array nesting level.
func lambdaVar(depth int) string {
	if depth == 0 {
		return "x"
	}
	return fmt.Sprintf("x%d", depth)
}
