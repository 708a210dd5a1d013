// Package generate wires the pipeline together: build the desired state from
// the entity model, replay migration history into the existing state, diff,
// sort, and emit one new migration file. The whole pass is synchronous and
// idempotent; re-running with unchanged inputs produces no new file.
package generate

import (
	"fmt"
	"path/filepath"
	"time"

	"migen/internal/diff"
	"migen/internal/dsl"
	"migen/internal/history"
	"migen/internal/migration"
	"migen/internal/schema"
	"migen/internal/state"
)

// DefaultDir is the migration directory used when none is configured.
const DefaultDir = "migrations"

// Options configure a single generator run.
type Options struct {
	// Dir is the migration directory; DefaultDir when empty.
	Dir string

	// DryRun computes the would-be file without writing it.
	DryRun bool

	// Now is an injectable clock for the filename timestamp.
	Now func() time.Time
}

// Result is the outcome of one generator run.
type Result struct {
	// NoChanges is set when desired and existing states already agree.
	NoChanges bool

	// Path is where the file was written (or would be, under dry-run).
	Path string

	File *migration.File

	// Warnings carry non-fatal history conditions (unrecognized statement
	// shapes, version gaps). They never abort generation.
	Warnings []string
}

// Run executes one full generator pass over the schema-bearing module.
func Run(mod *dsl.Module, opts Options) (*Result, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	desired, err := schema.Build(mod)
	if err != nil {
		return nil, err
	}

	h, err := history.Load(dir)
	if err != nil {
		return nil, err
	}

	existing, err := state.Reduce(h.Operations)
	if err != nil {
		return nil, err
	}

	ops, err := diff.Diff(existing, desired)
	if err != nil {
		return nil, err
	}

	res := &Result{Warnings: h.Warnings}
	if len(ops) == 0 {
		res.NoChanges = true
		return res, nil
	}

	sorted := migration.Sort(ops, existing)
	res.File = migration.Render(sorted, h.LastVersion+1, now())

	if opts.DryRun {
		res.Path = filepath.Join(dir, res.File.Name)
		return res, nil
	}

	path, err := res.File.Write(dir)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	res.Path = path
	return res, nil
}
