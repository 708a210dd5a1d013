// Package diff computes the unordered set of operations required to evolve
// the existing schema into the desired one. Differences are pure per-concern
// set comparisons; no DDL knowledge lives here. The emission order below is
// not semantically required (the sorter re-orders for safety) but keeps
// output stable across repeated runs on identical input.
package diff

import (
	"fmt"

	"migen/internal/core"
)

// Diff compares the existing and desired states and returns the required
// operations in a fixed, deterministic order:
//
//  1. new enums
//  2. value additions for shared enums
//  3. new tables
//  4. new indices
//  5. added columns
//  6. modified columns
//  7. dropped indices
//  8. dropped columns
//  9. dropped tables
//  10. dropped enums
//
// Shared enums whose existing values are not an in-order prefix of the
// desired values violate the append-only model and abort the diff.
func Diff(existing, desired *core.Schema) ([]core.Operation, error) {
	var ops []core.Operation

	for _, name := range desired.EnumNames() {
		if _, ok := existing.Enums[name]; !ok {
			ops = append(ops, &core.CreateEnum{Enum: desired.Enums[name].Clone()})
		}
	}

	for _, name := range desired.EnumNames() {
		old, ok := existing.Enums[name]
		if !ok {
			continue
		}
		added, err := addedEnumValues(old, desired.Enums[name])
		if err != nil {
			return nil, err
		}
		for _, v := range added {
			ops = append(ops, &core.AlterEnumAddValue{Enum: name, Value: v})
		}
	}

	for _, name := range desired.TableNames() {
		if _, ok := existing.Tables[name]; !ok {
			t := desired.Tables[name].Clone()
			// Indexes arrive through their own CreateIndex operations.
			t.Indexes = make(map[string]*core.Index)
			ops = append(ops, &core.CreateTable{Table: t})
		}
	}

	for _, tableName := range desired.TableNames() {
		t := desired.Tables[tableName]
		for _, idxName := range t.IndexNames() {
			if existingIndexOwner(existing, tableName, idxName) == nil {
				ops = append(ops, &core.CreateIndex{Index: t.Indexes[idxName].Clone()})
			}
		}
	}

	for _, tableName := range desired.TableNames() {
		old, ok := existing.Tables[tableName]
		if !ok {
			continue
		}
		if add := addedColumns(old, desired.Tables[tableName]); add != nil {
			ops = append(ops, add)
		}
	}

	for _, tableName := range desired.TableNames() {
		old, ok := existing.Tables[tableName]
		if !ok {
			continue
		}
		if mod := modifiedColumns(old, desired.Tables[tableName]); mod != nil {
			ops = append(ops, mod)
		}
	}

	for _, tableName := range existing.TableNames() {
		want, ok := desired.Tables[tableName]
		if !ok {
			// The whole table goes away; DropTable takes its indexes with it.
			continue
		}
		old := existing.Tables[tableName]
		for _, idxName := range old.IndexNames() {
			if _, ok := want.Indexes[idxName]; !ok {
				ops = append(ops, &core.DropIndex{Table: tableName, Name: idxName})
			}
		}
	}

	for _, tableName := range existing.TableNames() {
		want, ok := desired.Tables[tableName]
		if !ok {
			continue
		}
		if rem := removedColumns(existing.Tables[tableName], want); rem != nil {
			ops = append(ops, rem)
		}
	}

	for _, tableName := range existing.TableNames() {
		if _, ok := desired.Tables[tableName]; !ok {
			ops = append(ops, &core.DropTable{Name: tableName})
		}
	}

	for _, name := range existing.EnumNames() {
		if _, ok := desired.Enums[name]; !ok {
			ops = append(ops, &core.DropEnum{Name: name})
		}
	}

	return ops, nil
}

// addedEnumValues returns the desired values missing from the existing enum,
// enforcing that the existing list is an in-order prefix of the desired one.
func addedEnumValues(old, want *core.Enum) ([]string, error) {
	if len(old.Values) > len(want.Values) {
		return nil, fmt.Errorf("diff: enum %q: existing values %v are not a prefix of desired %v (values are append-only; drop the enum to remove values)",
			old.Name, old.Values, want.Values)
	}
	for i, v := range old.Values {
		if want.Values[i] != v {
			return nil, fmt.Errorf("diff: enum %q: existing values %v are not a prefix of desired %v (values are append-only; drop the enum to remove values)",
				old.Name, old.Values, want.Values)
		}
	}
	return want.Values[len(old.Values):], nil
}

// existingIndexOwner reports whether the named index already exists. Indexes
// are matched by name only: generated names encode table and column list, so
// a content change surfaces as a drop plus a create.
func existingIndexOwner(existing *core.Schema, table, index string) *core.Table {
	t, ok := existing.Tables[table]
	if !ok {
		return nil
	}
	if _, ok := t.Indexes[index]; !ok {
		return nil
	}
	return t
}

func addedColumns(old, want *core.Table) *core.AlterTable {
	op := &core.AlterTable{Table: want.Name}
	for _, name := range want.ColumnNames() {
		if _, ok := old.Columns[name]; !ok {
			op.Adds = append(op.Adds, want.Columns[name].Clone())
		}
	}
	if len(op.Adds) == 0 {
		return nil
	}
	return op
}

func removedColumns(old, want *core.Table) *core.AlterTable {
	op := &core.AlterTable{Table: want.Name}
	for _, name := range old.ColumnNames() {
		if _, ok := want.Columns[name]; !ok {
			op.Removes = append(op.Removes, name)
		}
	}
	if len(op.Removes) == 0 {
		return nil
	}
	return op
}

func modifiedColumns(old, want *core.Table) *core.AlterTable {
	op := &core.AlterTable{Table: want.Name}
	for _, name := range want.ColumnNames() {
		oldCol, ok := old.Columns[name]
		if !ok {
			continue
		}
		if ch := columnChange(oldCol, want.Columns[name]); ch != nil {
			op.Changes = append(op.Changes, ch)
		}
	}
	if len(op.Changes) == 0 {
		return nil
	}
	return op
}

// columnChange builds the option patch turning old into want, or nil when
// the columns agree on every diffable option.
func columnChange(old, want *core.Column) *core.ColumnChange {
	ch := &core.ColumnChange{Name: want.Name}
	changed := false

	if old.Type != want.Type || old.EnumName != want.EnumName {
		t := want.Type
		ch.Type = &t
		ch.EnumName = want.EnumName
		// Everything casts except widening to string.
		ch.Cast = want.Type != core.TypeString
		changed = true
	}

	if old.Nullable != want.Nullable {
		v := want.Nullable
		ch.Nullable = &v
		changed = true
	}

	if !defaultsEqual(old.Default, want.Default) {
		dc := &core.DefaultChange{Type: want.Type}
		if want.Default != nil {
			v := *want.Default
			dc.Value = &v
		}
		ch.Default = dc
		changed = true
	}

	if old.References != want.References || old.OnDelete != want.OnDelete {
		// Constraint replace: references and policy re-asserted together.
		ch.Ref = &core.RefChange{Table: want.References, OnDelete: want.OnDelete}
		changed = true
	}

	if !changed {
		return nil
	}
	return ch
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
