// Package core contains the single source of truth for the database schema.
// Both the desired state (built fresh from entity definitions) and the
// existing state (reconstructed by replaying migration history) are expressed
// with the types in this package, so the diff engine can compare them by
// plain equality.
package core

import (
	"fmt"
	"sort"
	"strings"
)

// DataType is an ENUM with all portable column data types.
type DataType string

const (
	TypeUUID     DataType = "uuid"
	TypeString   DataType = "string"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeBoolean  DataType = "boolean"
	TypeDatetime DataType = "datetime"
	TypeDate     DataType = "date"
	TypeDecimal  DataType = "decimal"
	TypeJSON     DataType = "json"

	// TypeEnum marks a column referencing a named enum type.
	// Column.EnumName carries the type name.
	TypeEnum DataType = "enum"
)

// ScalarTypes returns all portable data types except the enum reference.
func ScalarTypes() []DataType {
	return []DataType{
		TypeUUID,
		TypeString,
		TypeInteger,
		TypeFloat,
		TypeBoolean,
		TypeDatetime,
		TypeDate,
		TypeDecimal,
		TypeJSON,
	}
}

// IsScalarType reports whether s names one of the portable scalar types.
func IsScalarType(s string) bool {
	for _, t := range ScalarTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}

// OnDelete is the referential action taken when a referenced row is deleted.
type OnDelete string

const (
	OnDeleteNothing OnDelete = ""
	OnDeleteCascade OnDelete = "cascade"
)

// Schema is one complete database state: tables plus named enum types.
type Schema struct {
	Tables map[string]*Table
	Enums  map[string]*Enum
}

// NewSchema returns an empty schema with initialized maps.
func NewSchema() *Schema {
	return &Schema{
		Tables: make(map[string]*Table),
		Enums:  make(map[string]*Enum),
	}
}

// Table represents a table in the schema. Columns and indexes are keyed by
// name; iterate via ColumnNames / IndexNames for deterministic order.
type Table struct {
	Name    string
	Columns map[string]*Column
	Indexes map[string]*Index
}

// NewTable returns an empty table with initialized maps.
func NewTable(name string) *Table {
	return &Table{
		Name:    name,
		Columns: make(map[string]*Column),
		Indexes: make(map[string]*Index),
	}
}

// Column represents a single column inside a table.
type Column struct {
	Name string
	Type DataType

	// EnumName is the referenced enum type when Type is TypeEnum.
	EnumName string

	Nullable bool
	Default  *string

	// References is the target table of a foreign key; empty means none.
	// The referenced column is always the target's id.
	References string
	OnDelete   OnDelete
}

// Index represents a (possibly unique) index over an ordered column list.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// Enum represents a named enumerated type. Values are append-only: a value is
// never reordered or removed except by dropping the whole enum.
type Enum struct {
	Name   string
	Values []string
}

// TypeName returns the column's rendered type identifier: the enum name for
// enum references, the portable type name otherwise.
func (c *Column) TypeName() string {
	if c.Type == TypeEnum {
		return c.EnumName
	}
	return string(c.Type)
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := *c
	if c.Default != nil {
		v := *c.Default
		out.Default = &v
	}
	return &out
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	out := *i
	out.Columns = append([]string(nil), i.Columns...)
	return &out
}

// Clone returns a deep copy of the enum.
func (e *Enum) Clone() *Enum {
	return &Enum{Name: e.Name, Values: append([]string(nil), e.Values...)}
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable(t.Name)
	for name, c := range t.Columns {
		out.Columns[name] = c.Clone()
	}
	for name, i := range t.Indexes {
		out.Indexes[name] = i.Clone()
	}
	return out
}

// TableNames returns the table names in sorted order.
func (s *Schema) TableNames() []string {
	return sortedKeys(s.Tables)
}

// EnumNames returns the enum names in sorted order.
func (s *Schema) EnumNames() []string {
	return sortedKeys(s.Enums)
}

// ColumnNames returns the column names in sorted order.
func (t *Table) ColumnNames() []string {
	return sortedKeys(t.Columns)
}

// IndexNames returns the index names in sorted order.
func (t *Table) IndexNames() []string {
	return sortedKeys(t.Indexes)
}

// FindIndexTable returns the table owning the named index, or nil.
func (s *Schema) FindIndexTable(index string) *Table {
	for _, name := range s.TableNames() {
		t := s.Tables[name]
		if _, ok := t.Indexes[index]; ok {
			return t
		}
	}
	return nil
}

// ReferencedTables returns the distinct set of tables referenced by the table's
// foreign keys, in sorted order. Self references are excluded.
func (t *Table) ReferencedTables() []string {
	seen := make(map[string]struct{})
	for _, c := range t.Columns {
		if c.References == "" || strings.EqualFold(c.References, t.Name) {
			continue
		}
		seen[c.References] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String returns a short representation of a table for diagnostics.
func (t *Table) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d indexes)", t.Name, len(t.Columns), len(t.Indexes))
}

func sortedKeys[T any](m map[string]*T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EqualColumns reports whether two columns agree on every diffable option:
// type (including enum reference), nullability, default, references target,
// and on-delete policy.
func EqualColumns(a, b *Column) bool {
	return a.Type == b.Type &&
		a.EnumName == b.EnumName &&
		a.Nullable == b.Nullable &&
		ptrEq(a.Default, b.Default) &&
		a.References == b.References &&
		a.OnDelete == b.OnDelete
}

// EqualIndexes reports whether two indexes cover the same column list with
// the same uniqueness.
func EqualIndexes(a, b *Index) bool {
	if a.Unique != b.Unique || len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

func ptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
