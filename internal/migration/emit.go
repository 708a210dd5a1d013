package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"migen/internal/core"
)

// File is one rendered migration artifact.
type File struct {
	Version    int
	Name       string
	Contents   string
	Operations []core.Operation
}

// Render produces the migration file for an already-sorted operation list.
// The filename carries the UTC timestamp and the zero-padded version; the
// version is echoed in a header comment.
func Render(ops []core.Operation, version int, now time.Time) *File {
	name := fmt.Sprintf("%s_%06d.sql", now.UTC().Format("20060102150405"), version)

	var sb strings.Builder
	sb.WriteString("-- Generated by migen. Do not edit.\n")
	fmt.Fprintf(&sb, "-- version: %d\n\n", version)
	sb.WriteString("-- +migrate Up\n")
	for _, op := range ops {
		sb.WriteString("\n")
		sb.WriteString(SQL(op))
		sb.WriteString(";\n")
	}
	sb.WriteString("\n-- +migrate Down\n\n")
	sb.WriteString("-- Forward-only migration: no rollback is generated.\n")

	return &File{
		Version:    version,
		Name:       name,
		Contents:   sb.String(),
		Operations: ops,
	}
}

// Write stores the rendered file under dir, creating the directory when
// needed, and returns the full path.
func (f *File) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("migration: create directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, []byte(f.Contents), 0o644); err != nil {
		return "", fmt.Errorf("migration: write %s: %w", f.Name, err)
	}
	return path, nil
}

// Statements renders every operation to its SQL statement, in order.
func Statements(ops []core.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = SQL(op) + ";"
	}
	return out
}

// SQL renders one operation to its DDL statement, without the trailing
// semicolon.
func SQL(op core.Operation) string {
	switch op := op.(type) {
	case *core.CreateEnum:
		return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", op.Enum.Name, quotedList(op.Enum.Values))
	case *core.AlterEnumAddValue:
		return fmt.Sprintf("ALTER TYPE %s ADD VALUE %s", op.Enum, quote(op.Value))
	case *core.DropEnum:
		return fmt.Sprintf("DROP TYPE %s", op.Name)
	case *core.CreateTable:
		return createTableSQL(op.Table)
	case *core.DropTable:
		return fmt.Sprintf("DROP TABLE %s", op.Name)
	case *core.AlterTable:
		return alterTableSQL(op)
	case *core.CreateIndex:
		unique := ""
		if op.Index.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, op.Index.Name, op.Index.Table, strings.Join(op.Index.Columns, ", "))
	case *core.DropIndex:
		// IF EXISTS: a column drop in the same file already cascades away
		// the covering index before this statement runs.
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", op.Name)
	}
	return ""
}

func createTableSQL(t *core.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (", t.Name)
	names := t.ColumnNames()
	for i, name := range names {
		sb.WriteString("\n    ")
		sb.WriteString(columnDDL(t.Columns[name]))
		if i < len(names)-1 {
			sb.WriteString(",")
		}
	}
	sb.WriteString("\n)")
	return sb.String()
}

func columnDDL(c *core.Column) string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteString(" ")
	sb.WriteString(typeSQL(c.Type, c.EnumName))
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(literal(c.Type, *c.Default))
	}
	if c.References != "" {
		fmt.Fprintf(&sb, " REFERENCES %s (id)", c.References)
		if c.OnDelete == core.OnDeleteCascade {
			sb.WriteString(" ON DELETE CASCADE")
		}
	}
	return sb.String()
}

func alterTableSQL(op *core.AlterTable) string {
	var actions []string
	for _, col := range op.Adds {
		actions = append(actions, "ADD COLUMN "+columnDDL(col))
	}
	for _, name := range op.Removes {
		actions = append(actions, "DROP COLUMN "+name)
	}
	for _, ch := range op.Changes {
		actions = append(actions, changeActions(op.Table, ch)...)
	}
	return fmt.Sprintf("ALTER TABLE %s %s", op.Table, strings.Join(actions, ", "))
}

// changeActions renders one column option patch as ALTER TABLE sub-actions.
// A references change drops and re-adds the generated constraint; this is a
// constraint replace, not a separately modeled operation.
func changeActions(table string, ch *core.ColumnChange) []string {
	var actions []string

	if ch.Type != nil {
		typ := typeSQL(*ch.Type, ch.EnumName)
		action := fmt.Sprintf("ALTER COLUMN %s TYPE %s", ch.Name, typ)
		if ch.Cast {
			action += fmt.Sprintf(" USING %s::%s", ch.Name, typ)
		}
		actions = append(actions, action)
	}

	if ch.Nullable != nil {
		if *ch.Nullable {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", ch.Name))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", ch.Name))
		}
	}

	if ch.Default != nil {
		if ch.Default.Value == nil {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", ch.Name))
		} else {
			actions = append(actions, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", ch.Name, literal(ch.Default.Type, *ch.Default.Value)))
		}
	}

	if ch.Ref != nil {
		constraint := fmt.Sprintf("%s_%s_fkey", table, ch.Name)
		actions = append(actions, "DROP CONSTRAINT IF EXISTS "+constraint)
		if ch.Ref.Table != "" {
			add := fmt.Sprintf("ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id)",
				constraint, ch.Name, ch.Ref.Table)
			if ch.Ref.OnDelete == core.OnDeleteCascade {
				add += " ON DELETE CASCADE"
			}
			actions = append(actions, add)
		}
	}

	return actions
}

func typeSQL(t core.DataType, enumName string) string {
	switch t {
	case core.TypeUUID:
		return "uuid"
	case core.TypeString:
		return "text"
	case core.TypeInteger:
		return "integer"
	case core.TypeFloat:
		return "double precision"
	case core.TypeBoolean:
		return "boolean"
	case core.TypeDatetime:
		return "timestamp"
	case core.TypeDate:
		return "date"
	case core.TypeDecimal:
		return "numeric"
	case core.TypeJSON:
		return "jsonb"
	case core.TypeEnum:
		return enumName
	}
	return string(t)
}

// literal renders a default for a column of the given type: numeric and
// boolean columns take the bare value, everything else is single-quoted so a
// text default that happens to look like a number still types correctly. The
// history parser stores the unquoted form either way, keeping the round trip
// exact.
func literal(t core.DataType, v string) string {
	switch t {
	case core.TypeInteger, core.TypeFloat, core.TypeDecimal, core.TypeBoolean:
		return v
	}
	return quote(v)
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func quotedList(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = quote(v)
	}
	return strings.Join(parts, ", ")
}
