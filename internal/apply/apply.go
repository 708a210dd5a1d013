// Package apply connects to a PostgreSQL database and runs pending generated
// migrations. Applied versions are tracked in a schema_migrations ledger
// table; each file executes inside its own transaction together with its
// ledger insert. This is delivery infrastructure only: reconciliation never
// reads database state, it replays the file history.
package apply

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"github.com/jackc/pgx/v5"

	"migen/internal/history"
)

// enumAddValueRe matches the one emitted statement that cannot run inside a
// transaction block: PostgreSQL rejects ALTER TYPE ... ADD VALUE in a
// transaction before v12, and from v12 on forbids using the new value in the
// same transaction it was added in.
var enumAddValueRe = regexp.MustCompile(`(?i)^ALTER\s+TYPE\s+\S+\s+ADD\s+VALUE\b`)

// transactional reports whether every statement of the file may run inside a
// single transaction.
func transactional(f *history.File) bool {
	for _, stmt := range f.Statements {
		if enumAddValueRe.MatchString(stmt) {
			return false
		}
	}
	return true
}

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version bigint PRIMARY KEY,
    applied_at timestamptz NOT NULL DEFAULT now()
)`

// Options contains the settings for one apply invocation.
type Options struct {
	DSN    string
	Dir    string
	DryRun bool
	Out    io.Writer
}

// Runner applies pending migration files to a database.
type Runner struct {
	conn    *pgx.Conn
	options Options
	out     io.Writer
}

// NewRunner returns a Runner with the provided options.
func NewRunner(options Options) *Runner {
	out := options.Out
	if out == nil {
		out = io.Discard
	}
	return &Runner{options: options, out: out}
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Connect establishes the database connection and verifies it with a ping.
func (r *Runner) Connect(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, r.options.DSN)
	if err != nil {
		return fmt.Errorf("apply: connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("apply: ping: %w", err)
	}
	r.conn = conn
	return nil
}

// Close releases the database connection.
func (r *Runner) Close(ctx context.Context) error {
	if r.conn != nil {
		return r.conn.Close(ctx)
	}
	return nil
}

// Files returns every generated file in the migration directory, in
// version order, without consulting the ledger.
func (r *Runner) Files() ([]*history.File, error) {
	return history.ReadDir(r.options.Dir)
}

// Pending returns the generated files not yet recorded in the ledger,
// creating the ledger table on first use.
func (r *Runner) Pending(ctx context.Context) ([]*history.File, error) {
	files, err := history.ReadDir(r.options.Dir)
	if err != nil {
		return nil, err
	}

	if _, err := r.conn.Exec(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("apply: ensure schema_migrations: %w", err)
	}

	applied, err := r.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*history.File
	for _, f := range files {
		if !applied[f.Version] {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

func (r *Runner) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := r.conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("apply: read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("apply: scan version: %w", err)
		}
		applied[int(version)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("apply: read schema_migrations: %w", err)
	}
	return applied, nil
}

// Apply executes each pending file's Up statements in a transaction and
// records the version. Files run in version order; the first failure stops
// the run with already-committed files left applied. Under DryRun the files
// are listed instead.
func (r *Runner) Apply(ctx context.Context, files []*history.File) error {
	if r.options.DryRun {
		r.DryRun(files)
		return nil
	}
	for _, f := range files {
		r.printf("Applying %s (%d statement(s))...\n", filepath.Base(f.Path), len(f.Statements))
		if err := r.applyFile(ctx, f); err != nil {
			return err
		}
	}
	r.printf("Successfully applied %d migration(s)\n", len(files))
	return nil
}

func (r *Runner) applyFile(ctx context.Context, f *history.File) error {
	if !transactional(f) {
		r.printf("  %s adds enum values; applying without a transaction\n", filepath.Base(f.Path))
		return r.applyAutocommit(ctx, f)
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("apply: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range f.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply: %s: execute failed (rolled back): %w\n  Statement: %s",
				filepath.Base(f.Path), err, truncateSQL(stmt))
		}
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", int64(f.Version)); err != nil {
		return fmt.Errorf("apply: %s: record version: %w", filepath.Base(f.Path), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("apply: %s: commit: %w", filepath.Base(f.Path), err)
	}
	return nil
}

// applyAutocommit executes statements one by one outside a transaction, each
// committing on its own. A mid-file failure leaves earlier statements applied
// with the version unrecorded.
func (r *Runner) applyAutocommit(ctx context.Context, f *history.File) error {
	for _, stmt := range f.Statements {
		if _, err := r.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply: %s: execute failed: %w\n  Statement: %s",
				filepath.Base(f.Path), err, truncateSQL(stmt))
		}
	}
	if _, err := r.conn.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", int64(f.Version)); err != nil {
		return fmt.Errorf("apply: %s: record version: %w", filepath.Base(f.Path), err)
	}
	return nil
}

// DryRun lists the pending files and their statements without executing.
func (r *Runner) DryRun(files []*history.File) {
	r.printf("=== DRY RUN MODE ===\n")
	for _, f := range files {
		r.printf("%s (version %d):\n", filepath.Base(f.Path), f.Version)
		for i, stmt := range f.Statements {
			r.printf("  %d. %s\n", i+1, truncateSQL(stmt))
		}
	}
	r.printf("%d migration(s) pending. Run without --dry-run to apply.\n", len(files))
}

func truncateSQL(stmt string) string {
	if len(stmt) > 120 {
		return stmt[:117] + "..."
	}
	return stmt
}
