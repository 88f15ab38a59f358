// Package runner drives one batch: validate every schema, compile it, and
// materialize its two views. Schemas are independent: one schema's failure
// never aborts the others, and all failures are collected and reported.
package runner

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/posiek07/extensions/internal/database/repositories"
	"github.com/posiek07/extensions/internal/schema"
	"github.com/posiek07/extensions/internal/sqlgen"
)

// Materializer is the slice of the view repository the runner needs.
type Materializer interface {
	EnsureRegistry(ctx context.Context) error
	Materialize(ctx context.Context, view sqlgen.ViewDefinition) error
}

// SchemaResult is the outcome for one schema; Err is nil on success.
type SchemaResult struct {
	Schema string
	Err    error
}

// Result aggregates per-schema outcomes for one batch run.
type Result struct {
	Results []SchemaResult
}

// Failed returns the results that carry an error.
func (r *Result) Failed() []SchemaResult {
	var failed []SchemaResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// ExitCode is non-zero if any schema failed.
func (r *Result) ExitCode() int {
	if len(r.Failed()) > 0 {
		return 1
	}
	return 0
}

// Runner executes batch runs.
type Runner struct {
	compiler *sqlgen.Compiler
	views    Materializer
	logger   logrus.FieldLogger
}

func New(compiler *sqlgen.Compiler, views Materializer, logger logrus.FieldLogger) *Runner {
	return &Runner{
		compiler: compiler,
		views:    views,
		logger:   logger,
	}
}

// Run processes every schema in deterministic order. loadErrs carries
// schemas whose definition files were already rejected by the loader; they
// count as failed without aborting the rest. The error return is reserved
// for infrastructure failures that would fail every schema anyway.
func (r *Runner) Run(ctx context.Context, schemas schema.Collection, loadErrs map[string]error) (*Result, error) {
	if err := r.views.EnsureRegistry(ctx); err != nil {
		return nil, err
	}

	result := &Result{}
	rejected := make([]string, 0, len(loadErrs))
	for name := range loadErrs {
		rejected = append(rejected, name)
	}
	sort.Strings(rejected)
	for _, name := range rejected {
		result.Results = append(result.Results, SchemaResult{Schema: name, Err: loadErrs[name]})
	}

	for _, name := range schemas.Names() {
		err := r.processSchema(ctx, schemas[name])
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"schema": name,
				"kind":   errorKind(err),
			}).WithError(err).Error("Schema failed")
		}
		result.Results = append(result.Results, SchemaResult{Schema: name, Err: err})
	}

	r.logger.WithFields(logrus.Fields{
		"schemas": len(result.Results),
		"failed":  len(result.Failed()),
	}).Info("Batch run finished")

	return result, nil
}

// processSchema takes one schema through validate, compile, materialize.
// The changelog view goes first: the latest view selects from it.
func (r *Runner) processSchema(ctx context.Context, s *schema.Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	compiled, err := r.compiler.Compile(s)
	if err != nil {
		return err
	}

	if err := r.views.Materialize(ctx, compiled.Changelog); err != nil {
		return err
	}
	if err := r.views.Materialize(ctx, compiled.Latest); err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"schema":         s.Name,
		"changelog_view": compiled.Changelog.Name,
		"latest_view":    compiled.Latest.Name,
	}).Info("Schema views up to date")
	return nil
}

// errorKind names the taxonomy bucket an error falls into, for log fields.
func errorKind(err error) string {
	var (
		validationErr      *schema.ValidationError
		compilationErr     *sqlgen.CompilationError
		materializationErr *repositories.MaterializationError
	)
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &compilationErr):
		return "compilation"
	case errors.As(err, &materializationErr):
		return "materialization"
	default:
		return "internal"
	}
}
