// Package state folds a replayed operation stream into the cumulative
// existing schema. Migration history is expected to replay strictly in
// order, so any operation touching something the accumulator does not know
// about signals out-of-order or tampered history and is fatal.
package state

import (
	"fmt"

	"migen/internal/core"
)

// Reduce folds operations left to right into a schema accumulator.
func Reduce(ops []core.Operation) (*core.Schema, error) {
	s := core.NewSchema()
	for i, op := range ops {
		if err := apply(s, op); err != nil {
			return nil, fmt.Errorf("state: operation %d: %w", i+1, err)
		}
	}
	return s, nil
}

func apply(s *core.Schema, op core.Operation) error {
	switch op := op.(type) {
	case *core.CreateTable:
		return applyCreateTable(s, op)
	case *core.DropTable:
		if _, ok := s.Tables[op.Name]; !ok {
			return fmt.Errorf("drop table %q: table does not exist", op.Name)
		}
		delete(s.Tables, op.Name)
	case *core.AlterTable:
		return applyAlterTable(s, op)
	case *core.CreateIndex:
		return applyCreateIndex(s, op)
	case *core.DropIndex:
		return applyDropIndex(s, op)
	case *core.CreateEnum:
		if _, ok := s.Enums[op.Enum.Name]; ok {
			return fmt.Errorf("create enum %q: enum already exists", op.Enum.Name)
		}
		s.Enums[op.Enum.Name] = op.Enum.Clone()
	case *core.AlterEnumAddValue:
		e, ok := s.Enums[op.Enum]
		if !ok {
			return fmt.Errorf("alter enum %q: enum does not exist", op.Enum)
		}
		for _, v := range e.Values {
			if v == op.Value {
				return fmt.Errorf("alter enum %q: value %q already present", op.Enum, op.Value)
			}
		}
		e.Values = append(e.Values, op.Value)
	case *core.DropEnum:
		if _, ok := s.Enums[op.Name]; !ok {
			return fmt.Errorf("drop enum %q: enum does not exist", op.Name)
		}
		delete(s.Enums, op.Name)
	default:
		return fmt.Errorf("unsupported operation %T", op)
	}
	return nil
}

func applyCreateTable(s *core.Schema, op *core.CreateTable) error {
	name := op.Table.Name
	if _, ok := s.Tables[name]; ok {
		return fmt.Errorf("create table %q: table already exists", name)
	}
	s.Tables[name] = op.Table.Clone()

	// Validated after insertion so self references resolve.
	for _, colName := range op.Table.ColumnNames() {
		if err := validateColumn(s, op.Table.Columns[colName]); err != nil {
			return fmt.Errorf("create table %q: %w", name, err)
		}
	}
	return nil
}

func applyAlterTable(s *core.Schema, op *core.AlterTable) error {
	t, ok := s.Tables[op.Table]
	if !ok {
		return fmt.Errorf("alter table %q: table does not exist", op.Table)
	}

	for _, col := range op.Adds {
		if _, ok := t.Columns[col.Name]; ok {
			return fmt.Errorf("alter table %q: column %q already exists", op.Table, col.Name)
		}
		if err := validateColumn(s, col); err != nil {
			return fmt.Errorf("alter table %q: %w", op.Table, err)
		}
		t.Columns[col.Name] = col.Clone()
	}

	for _, name := range op.Removes {
		if _, ok := t.Columns[name]; !ok {
			return fmt.Errorf("alter table %q: column %q does not exist", op.Table, name)
		}
		delete(t.Columns, name)
	}

	for _, ch := range op.Changes {
		col, ok := t.Columns[ch.Name]
		if !ok {
			return fmt.Errorf("alter table %q: column %q does not exist", op.Table, ch.Name)
		}
		if err := mergeChange(s, col, ch); err != nil {
			return fmt.Errorf("alter table %q: column %q: %w", op.Table, ch.Name, err)
		}
	}
	return nil
}

// mergeChange overwrites only the option keys the change names, preserving
// every other option of the column.
func mergeChange(s *core.Schema, col *core.Column, ch *core.ColumnChange) error {
	if ch.Type != nil {
		if *ch.Type == core.TypeEnum {
			if _, ok := s.Enums[ch.EnumName]; !ok {
				return fmt.Errorf("enum %q does not exist", ch.EnumName)
			}
		}
		col.Type = *ch.Type
		col.EnumName = ch.EnumName
	}
	if ch.Nullable != nil {
		col.Nullable = *ch.Nullable
	}
	if ch.Default != nil {
		if ch.Default.Value == nil {
			col.Default = nil
		} else {
			v := *ch.Default.Value
			col.Default = &v
		}
	}
	if ch.Ref != nil {
		if ch.Ref.Table == "" {
			col.References = ""
			col.OnDelete = core.OnDeleteNothing
		} else {
			if _, ok := s.Tables[ch.Ref.Table]; !ok {
				return fmt.Errorf("referenced table %q does not exist", ch.Ref.Table)
			}
			col.References = ch.Ref.Table
			col.OnDelete = ch.Ref.OnDelete
		}
	}
	return nil
}

func applyCreateIndex(s *core.Schema, op *core.CreateIndex) error {
	idx := op.Index
	t, ok := s.Tables[idx.Table]
	if !ok {
		return fmt.Errorf("create index %q: table %q does not exist", idx.Name, idx.Table)
	}
	if _, ok := t.Indexes[idx.Name]; ok {
		return fmt.Errorf("create index %q: index already exists", idx.Name)
	}
	for _, col := range idx.Columns {
		if _, ok := t.Columns[col]; !ok {
			return fmt.Errorf("create index %q: column %q does not exist in table %q", idx.Name, col, idx.Table)
		}
	}
	t.Indexes[idx.Name] = idx.Clone()
	return nil
}

func applyDropIndex(s *core.Schema, op *core.DropIndex) error {
	if op.Table != "" {
		t, ok := s.Tables[op.Table]
		if !ok {
			return fmt.Errorf("drop index %q: table %q does not exist", op.Name, op.Table)
		}
		if _, ok := t.Indexes[op.Name]; !ok {
			return fmt.Errorf("drop index %q: index does not exist on table %q", op.Name, op.Table)
		}
		delete(t.Indexes, op.Name)
		return nil
	}

	// Operations parsed from history carry no owning table.
	t := s.FindIndexTable(op.Name)
	if t == nil {
		return fmt.Errorf("drop index %q: index does not exist", op.Name)
	}
	delete(t.Indexes, op.Name)
	return nil
}

func validateColumn(s *core.Schema, col *core.Column) error {
	if col.Type == core.TypeEnum {
		if _, ok := s.Enums[col.EnumName]; !ok {
			return fmt.Errorf("column %q: enum %q does not exist", col.Name, col.EnumName)
		}
	}
	if col.References != "" {
		if _, ok := s.Tables[col.References]; !ok {
			return fmt.Errorf("column %q: referenced table %q does not exist", col.Name, col.References)
		}
	}
	return nil
}
