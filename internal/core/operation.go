package core

// Operation is one atomic DDL-equivalent action on a table, column, index,
// or enum. Every variant carries enough information to regenerate its literal
// DDL without consulting any other state.
type Operation interface {
	isOperation()
}

// CreateTable creates a table with its full column set.
type CreateTable struct {
	Table *Table
}

// DropTable removes a table.
type DropTable struct {
	Name string
}

// AlterTable adds, removes, and modifies columns of one table.
type AlterTable struct {
	Table   string
	Adds    []*Column
	Removes []string
	Changes []*ColumnChange
}

// ColumnChange is an option patch for a single column. Only non-nil fields
// take part; untouched options survive a reducer merge unchanged.
type ColumnChange struct {
	Name string

	// Type is set when the column type changes. EnumName carries the target
	// enum for enum references. Cast signals that existing values need an
	// explicit cast expression (always, except when widening to string).
	Type     *DataType
	EnumName string
	Cast     bool

	// Nullable relaxes (true) or tightens (false) the null constraint.
	Nullable *bool

	// Default replaces the column default; a nil Value drops it.
	Default *DefaultChange

	// Ref re-asserts the foreign key with a new on-delete policy, or clears
	// it when Table is empty. Constraint replace, not separately modeled.
	Ref *RefChange
}

// DefaultChange carries a default replacement. Value nil means DROP DEFAULT.
// Type is the column's data type, deciding how the emitter renders Value.
type DefaultChange struct {
	Value *string
	Type  DataType
}

// RefChange carries a foreign-key re-assertion.
type RefChange struct {
	Table    string
	OnDelete OnDelete
}

// CreateIndex creates a (possibly unique) index.
type CreateIndex struct {
	Index *Index
}

// DropIndex removes an index. Table may be empty when the operation was
// parsed from history; the reducer resolves the owner by scanning.
type DropIndex struct {
	Table string
	Name  string
}

// CreateEnum creates a named enum type with its full value list.
type CreateEnum struct {
	Enum *Enum
}

// DropEnum removes a named enum type.
type DropEnum struct {
	Name string
}

// AlterEnumAddValue appends one value to an existing enum type.
type AlterEnumAddValue struct {
	Enum  string
	Value string
}

func (*CreateTable) isOperation()       {}
func (*DropTable) isOperation()         {}
func (*AlterTable) isOperation()        {}
func (*CreateIndex) isOperation()       {}
func (*DropIndex) isOperation()         {}
func (*CreateEnum) isOperation()        {}
func (*DropEnum) isOperation()          {}
func (*AlterEnumAddValue) isOperation() {}
