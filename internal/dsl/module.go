// Package dsl defines the resolved entity model handed to the migration
// generator. It is the read-only boundary with the upstream schema compiler:
// an ordered entity list plus globally declared enums. A TOML loader is
// provided so the CLI has a concrete on-disk representation of the model.
package dsl

import "strings"

// RelationKind distinguishes the two supported relation shapes.
type RelationKind string

const (
	BelongsTo RelationKind = "belongs_to"
	HasMany   RelationKind = "has_many"
)

// Module is the schema-bearing input to the generator.
type Module struct {
	Entities []*Entity

	// Enums maps globally declared enum names to their ordered value lists.
	Enums map[string][]string
}

// Entity is one declared domain object, mapped 1:1 to a table unless virtual.
type Entity struct {
	Name  string
	Table string

	// Virtual entities are not persisted and produce no table.
	Virtual bool

	Attributes []*Attribute
	Relations  []*Relation

	// Keys are declared composite uniqueness keys, as column lists.
	Keys [][]string

	// Scope names the partitioning belongs_to relations whose id columns are
	// prepended to every attribute-uniqueness index of the entity.
	Scope []string
}

// Attribute is one declared field of an entity.
type Attribute struct {
	Name string

	// Kind is "id", one of the portable scalar type names, "enum" (with
	// Values), or the name of a globally declared enum.
	Kind string

	// Values is the fixed value set for an inline enum attribute.
	Values []string

	Optional bool

	// Nullable explicitly overrides the nullability derived from Optional.
	Nullable *bool

	Unique  bool
	Default any
}

// Relation is one declared association between entities.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string

	// OnDeleteCascade requests cascading deletes for a belongs_to column.
	OnDeleteCascade bool
}

// FindEntity looks up an entity by name, case-insensitively.
func (m *Module) FindEntity(name string) *Entity {
	for _, e := range m.Entities {
		if strings.EqualFold(e.Name, name) {
			return e
		}
	}
	return nil
}
