// Package schema holds the user-declared field-type model that describes how
// to interpret the opaque payload of a changelog row. Schemas are loaded once
// from declarative JSON files and are immutable afterwards; the SQL generator
// consumes them read-only.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FieldType is the tag of a declared field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeTimestamp FieldType = "timestamp"
	TypeGeopoint  FieldType = "geopoint"
	TypeReference FieldType = "reference"
	TypeMap       FieldType = "map"
	TypeArray     FieldType = "array"
)

// primitiveTypes are the non-recursive field types.
var primitiveTypes = map[FieldType]bool{
	TypeString:    true,
	TypeNumber:    true,
	TypeBoolean:   true,
	TypeTimestamp: true,
	TypeGeopoint:  true,
	TypeReference: true,
}

// Field is one declared field. Maps carry nested Fields, arrays carry the
// element definition in Elem; declaration order of Fields is significant and
// determines output column order.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Fields []Field   `json:"fields,omitempty"`
	Elem   *Field    `json:"elem,omitempty"`
}

// Schema is a named, ordered field tree.
type Schema struct {
	Name   string
	Fields []Field
}

// Collection maps schema name to schema definition.
type Collection map[string]*Schema

// Names returns the schema names in deterministic (sorted) order.
func (c Collection) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationError reports a schema that cannot be compiled. Path identifies
// the offending field in parent.child notation; an empty path refers to the
// schema itself.
type ValidationError struct {
	Schema string
	Path   string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema %q: %s", e.Schema, e.Msg)
	}
	return fmt.Sprintf("schema %q: field %s: %s", e.Schema, e.Path, e.Msg)
}

// identifierPattern matches names that are safe as SQL identifiers and JSON
// path segments in the generated views.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the schema against the rules the SQL generator relies on:
// known type tags, identifier-safe names, no case-insensitive name collisions
// within one field list (target dialects may fold identifier case), maps with
// at least one nested field, arrays with an element definition. A schema with
// zero fields is valid and compiles to a metadata-only view.
func (s *Schema) Validate() error {
	if !identifierPattern.MatchString(s.Name) {
		return &ValidationError{Schema: s.Name, Msg: "schema name must be a valid identifier"}
	}
	return s.validateFields(s.Fields, "")
}

func (s *Schema) validateFields(fields []Field, parent string) error {
	seen := make(map[string]string, len(fields))
	for _, f := range fields {
		path := f.Name
		if parent != "" {
			path = parent + "." + f.Name
		}
		if !identifierPattern.MatchString(f.Name) {
			return &ValidationError{Schema: s.Name, Path: path, Msg: fmt.Sprintf("invalid field name %q", f.Name)}
		}
		lower := strings.ToLower(f.Name)
		if prev, ok := seen[lower]; ok {
			return &ValidationError{Schema: s.Name, Path: path,
				Msg: fmt.Sprintf("name collides with field %q (identifiers are case-insensitive in the target dialect)", prev)}
		}
		seen[lower] = f.Name
		if err := s.validateField(f, path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateField(f Field, path string) error {
	switch {
	case primitiveTypes[f.Type]:
		if len(f.Fields) > 0 || f.Elem != nil {
			return &ValidationError{Schema: s.Name, Path: path,
				Msg: fmt.Sprintf("type %q does not take nested fields", f.Type)}
		}
		return nil
	case f.Type == TypeMap:
		if f.Elem != nil {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "map does not take an element definition"}
		}
		if len(f.Fields) == 0 {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "map requires at least one nested field"}
		}
		return s.validateFields(f.Fields, path)
	case f.Type == TypeArray:
		if len(f.Fields) > 0 {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "array nests through its element definition, not fields"}
		}
		if f.Elem == nil {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "array requires an element definition"}
		}
		return s.validateElem(*f.Elem, path+"[]")
	default:
		return &ValidationError{Schema: s.Name, Path: path, Msg: fmt.Sprintf("unsupported field type %q", f.Type)}
	}
}

// validateElem checks an array element definition. Elements are anonymous;
// a declared name on the element is rejected to keep the generated column
// shape unambiguous.
func (s *Schema) validateElem(elem Field, path string) error {
	if elem.Name != "" {
		return &ValidationError{Schema: s.Name, Path: path, Msg: "array element must not declare a name"}
	}
	switch {
	case primitiveTypes[elem.Type]:
		if len(elem.Fields) > 0 || elem.Elem != nil {
			return &ValidationError{Schema: s.Name, Path: path,
				Msg: fmt.Sprintf("type %q does not take nested fields", elem.Type)}
		}
		return nil
	case elem.Type == TypeMap:
		if len(elem.Fields) == 0 {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "map requires at least one nested field"}
		}
		return s.validateFields(elem.Fields, path)
	case elem.Type == TypeArray:
		if elem.Elem == nil {
			return &ValidationError{Schema: s.Name, Path: path, Msg: "array requires an element definition"}
		}
		return s.validateElem(*elem.Elem, path+"[]")
	default:
		return &ValidationError{Schema: s.Name, Path: path, Msg: fmt.Sprintf("unsupported field type %q", elem.Type)}
	}
}
