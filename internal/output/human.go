package output

import (
	"fmt"
	"strings"

	"migen/internal/core"
	"migen/internal/generate"
	"migen/internal/migration"
)

type humanFormatter struct{}

func (humanFormatter) FormatResult(res *generate.Result) (string, error) {
	var sb strings.Builder

	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}

	if res.NoChanges {
		sb.WriteString("No changes: schema and migration history already agree.\n")
		return sb.String(), nil
	}

	f := res.File
	fmt.Fprintf(&sb, "Migration %s (version %d), %d operation(s):\n", f.Name, f.Version, len(f.Operations))
	for i, op := range f.Operations {
		fmt.Fprintf(&sb, "  %d. %s %s\n", i+1, opLabel(op), compactSQL(migration.SQL(op)))
	}
	fmt.Fprintf(&sb, "Target: %s\n", res.Path)

	return sb.String(), nil
}

func opLabel(op core.Operation) string {
	switch op.(type) {
	case *core.CreateEnum:
		return "[create enum]"
	case *core.AlterEnumAddValue:
		return "[alter enum]"
	case *core.CreateTable:
		return "[create table]"
	case *core.AlterTable:
		return "[alter table]"
	case *core.CreateIndex:
		return "[create index]"
	case *core.DropIndex:
		return "[drop index]"
	case *core.DropTable:
		return "[drop table]"
	case *core.DropEnum:
		return "[drop enum]"
	}
	return "[operation]"
}

// compactSQL collapses the multi-line CREATE TABLE rendering for listing.
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
