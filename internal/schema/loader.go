package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed field-schema.json
var fieldSchemaJSON []byte

// Loader reads schema definition files. Each schema is one JSON file named
// <schemaName>.json containing an ordered "fields" array. Files are checked
// against the embedded JSON Schema before decoding so that shape errors carry
// a precise location instead of a generic unmarshal failure.
type Loader struct {
	logger logrus.FieldLogger
	meta   *gojsonschema.Schema
}

// NewLoader compiles the embedded definition schema once and reuses it for
// every file.
func NewLoader(logger logrus.FieldLogger) (*Loader, error) {
	meta, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(fieldSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded field schema: %w", err)
	}
	return &Loader{logger: logger, meta: meta}, nil
}

// LoadDir loads every *.json file in dir. A malformed file aborts that schema
// only: the returned collection holds the schemas that loaded cleanly and
// fileErrs maps schema name to the error that rejected it. The error return
// is reserved for problems with the directory itself.
func (l *Loader) LoadDir(dir string) (Collection, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	schemas := make(Collection)
	fileErrs := make(map[string]error)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		schemaName := strings.TrimSuffix(name, ".json")
		s, err := l.LoadFile(schemaName, filepath.Join(dir, name))
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"schema": schemaName,
				"file":   name,
			}).WithError(err).Error("Schema definition rejected")
			fileErrs[schemaName] = err
			continue
		}
		schemas[schemaName] = s
		l.logger.WithFields(logrus.Fields{
			"schema": schemaName,
			"fields": len(s.Fields),
		}).Debug("Schema definition loaded")
	}

	return schemas, fileErrs, nil
}

// LoadFile loads and validates a single schema definition file.
func (l *Loader) LoadFile(schemaName, path string) (*Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	result, err := l.meta.Validate(gojsonschema.NewBytesLoader(content))
	if err != nil {
		return nil, &ValidationError{Schema: schemaName, Msg: fmt.Sprintf("not valid JSON: %v", err)}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, &ValidationError{Schema: schemaName, Msg: "definition does not match the schema format: " + strings.Join(details, "; ")}
	}

	var doc struct {
		Fields []Field `json:"fields"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, &ValidationError{Schema: schemaName, Msg: fmt.Sprintf("failed to decode definition: %v", err)}
	}

	s := &Schema{Name: schemaName, Fields: doc.Fields}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
