// Package migration orders reconciliation operations for safe sequential
// execution and renders them into a migration file consumable by the
// migration runner. The model is intentionally forward-only: the Down
// section of every emitted file is a no-op.
package migration

import (
	"migen/internal/core"
)

// Sort buckets operations into priority tiers, highest first: enum creation,
// table creation (topologically ordered over foreign-key edges), table
// alteration, index creation, index drop, table drop (reverse dependency
// order, from the existing state), enum drop. Ties within a tier preserve
// the diff engine's emission order.
func Sort(ops []core.Operation, existing *core.Schema) []core.Operation {
	var (
		createEnums  []core.Operation
		createTables []*core.CreateTable
		alterTables  []core.Operation
		createIdx    []core.Operation
		dropIdx      []core.Operation
		dropTables   []*core.DropTable
		dropEnums    []core.Operation
	)

	for _, op := range ops {
		switch op := op.(type) {
		case *core.CreateEnum, *core.AlterEnumAddValue:
			createEnums = append(createEnums, op)
		case *core.CreateTable:
			createTables = append(createTables, op)
		case *core.AlterTable:
			alterTables = append(alterTables, op)
		case *core.CreateIndex:
			createIdx = append(createIdx, op)
		case *core.DropIndex:
			dropIdx = append(dropIdx, op)
		case *core.DropTable:
			dropTables = append(dropTables, op)
		case *core.DropEnum:
			dropEnums = append(dropEnums, op)
		}
	}

	out := make([]core.Operation, 0, len(ops))
	out = append(out, createEnums...)
	for _, op := range sortCreates(createTables) {
		out = append(out, op)
	}
	out = append(out, alterTables...)
	out = append(out, createIdx...)
	out = append(out, dropIdx...)
	for _, op := range sortDrops(dropTables, existing) {
		out = append(out, op)
	}
	out = append(out, dropEnums...)
	return out
}

// sortCreates orders table creations so every referenced table is created
// before its dependents. Edges to tables outside the batch already exist and
// are ignored, as are self references (they would be a cycle false
// positive). A genuine reference cycle cannot be satisfied sequentially;
// the remainder is appended in input order.
func sortCreates(creates []*core.CreateTable) []*core.CreateTable {
	if len(creates) <= 1 {
		return creates
	}

	inBatch := make(map[string]bool, len(creates))
	for _, op := range creates {
		inBatch[op.Table.Name] = true
	}

	emitted := make(map[string]bool, len(creates))
	out := make([]*core.CreateTable, 0, len(creates))
	remaining := append([]*core.CreateTable(nil), creates...)

	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, op := range remaining {
			if createsSatisfied(op.Table, inBatch, emitted) {
				emitted[op.Table.Name] = true
				out = append(out, op)
				progressed = true
				continue
			}
			next = append(next, op)
		}
		remaining = next
		if !progressed {
			out = append(out, remaining...)
			break
		}
	}
	return out
}

func createsSatisfied(t *core.Table, inBatch, emitted map[string]bool) bool {
	for _, ref := range t.ReferencedTables() {
		if inBatch[ref] && !emitted[ref] {
			return false
		}
	}
	return true
}

// sortDrops orders table drops so dependents are torn down before their
// dependencies. Foreign-key topology comes from the existing state, since
// drop operations carry only the table name.
func sortDrops(drops []*core.DropTable, existing *core.Schema) []*core.DropTable {
	if len(drops) <= 1 || existing == nil {
		return drops
	}

	pending := make(map[string]bool, len(drops))
	for _, op := range drops {
		pending[op.Name] = true
	}

	// referencedBy[b] is true while some still-pending table references b.
	referencedBy := func(name string) bool {
		for other := range pending {
			if other == name {
				continue
			}
			t, ok := existing.Tables[other]
			if !ok {
				continue
			}
			for _, ref := range t.ReferencedTables() {
				if ref == name {
					return true
				}
			}
		}
		return false
	}

	out := make([]*core.DropTable, 0, len(drops))
	remaining := append([]*core.DropTable(nil), drops...)
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		for _, op := range remaining {
			if !referencedBy(op.Name) {
				delete(pending, op.Name)
				out = append(out, op)
				progressed = true
				continue
			}
			next = append(next, op)
		}
		remaining = next
		if !progressed {
			out = append(out, remaining...)
			break
		}
	}
	return out
}
