// Package schema builds the desired database state from the resolved entity
// model. The output is recomputed fresh on every run and never persisted;
// it is compared against the state replayed from migration history.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"migen/internal/core"
	"migen/internal/dsl"
)

// Build assembles the desired schema from the module. Unresolved relation
// targets, unknown attribute kinds, and dangling scope or key references are
// configuration errors and abort the build.
func Build(mod *dsl.Module) (*core.Schema, error) {
	s := core.NewSchema()

	for _, e := range mod.Entities {
		if e.Virtual {
			continue
		}
		t, err := buildTable(mod, e, s)
		if err != nil {
			return nil, fmt.Errorf("schema: entity %q: %w", e.Name, err)
		}
		if _, ok := s.Tables[t.Name]; ok {
			return nil, fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		s.Tables[t.Name] = t
	}

	return s, nil
}

func buildTable(mod *dsl.Module, e *dsl.Entity, s *core.Schema) (*core.Table, error) {
	t := core.NewTable(e.Table)

	for _, a := range e.Attributes {
		col, err := buildColumn(mod, e, a, s)
		if err != nil {
			return nil, err
		}
		t.Columns[col.Name] = col
	}

	for _, r := range e.Relations {
		if r.Kind != dsl.BelongsTo {
			if mod.FindEntity(r.Target) == nil {
				return nil, fmt.Errorf("relation %q: unknown target %q", r.Name, r.Target)
			}
			continue
		}
		col, err := buildRelationColumn(mod, r)
		if err != nil {
			return nil, err
		}
		if _, ok := t.Columns[col.Name]; ok {
			return nil, fmt.Errorf("relation %q: column %q is already defined by an attribute", r.Name, col.Name)
		}
		t.Columns[col.Name] = col
	}

	scope, err := scopeColumns(e)
	if err != nil {
		return nil, err
	}

	for _, a := range e.Attributes {
		if !a.Unique {
			continue
		}
		addUniqueIndex(t, append(append([]string(nil), scope...), a.Name))
	}
	for _, key := range e.Keys {
		for _, col := range key {
			if _, ok := t.Columns[col]; !ok {
				return nil, fmt.Errorf("composite key references unknown column %q", col)
			}
		}
		addUniqueIndex(t, key)
	}

	return t, nil
}

func buildColumn(mod *dsl.Module, e *dsl.Entity, a *dsl.Attribute, s *core.Schema) (*core.Column, error) {
	col := &core.Column{
		Name:     a.Name,
		Nullable: a.Optional,
	}
	if a.Nullable != nil {
		col.Nullable = *a.Nullable
	}
	if a.Default != nil {
		v := normalizeDefault(a.Default)
		col.Default = &v
	}

	switch {
	case a.Kind == "id":
		col.Type = core.TypeUUID
	case core.IsScalarType(a.Kind):
		col.Type = core.DataType(a.Kind)
	case a.Kind == "enum":
		name := fmt.Sprintf("%s_%ss", e.Name, a.Name)
		if err := registerEnum(s, name, a.Values); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		col.Type = core.TypeEnum
		col.EnumName = name
	default:
		values, ok := mod.Enums[a.Kind]
		if !ok {
			return nil, fmt.Errorf("attribute %q: unknown kind %q", a.Name, a.Kind)
		}
		if err := registerEnum(s, a.Kind, values); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		col.Type = core.TypeEnum
		col.EnumName = a.Kind
	}

	return col, nil
}

func buildRelationColumn(mod *dsl.Module, r *dsl.Relation) (*core.Column, error) {
	target := mod.FindEntity(r.Target)
	if target == nil {
		return nil, fmt.Errorf("relation %q: unknown target %q", r.Name, r.Target)
	}
	if target.Virtual {
		return nil, fmt.Errorf("relation %q: target %q is virtual", r.Name, r.Target)
	}

	col := &core.Column{
		Name:       r.Name + "_id",
		Type:       core.TypeUUID,
		References: target.Table,
	}
	if r.OnDeleteCascade {
		col.OnDelete = core.OnDeleteCascade
	}
	return col, nil
}

// scopeColumns resolves the entity scope into the id columns of the named
// partitioning relations.
func scopeColumns(e *dsl.Entity) ([]string, error) {
	cols := make([]string, 0, len(e.Scope))
	for _, name := range e.Scope {
		found := false
		for _, r := range e.Relations {
			if r.Kind == dsl.BelongsTo && r.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("scope references unknown belongs_to relation %q", name)
		}
		cols = append(cols, name+"_id")
	}
	return cols, nil
}

func addUniqueIndex(t *core.Table, columns []string) {
	name := fmt.Sprintf("%s_%s_key", t.Name, strings.Join(columns, "_"))
	t.Indexes[name] = &core.Index{
		Name:    name,
		Table:   t.Name,
		Columns: append([]string(nil), columns...),
		Unique:  true,
	}
}

// registerEnum records an enum in the desired state, rejecting conflicting
// redefinitions of the same name.
func registerEnum(s *core.Schema, name string, values []string) error {
	if existing, ok := s.Enums[name]; ok {
		if !equalValues(existing.Values, values) {
			return fmt.Errorf("enum %q redefined with different values", name)
		}
		return nil
	}
	if len(values) == 0 {
		return fmt.Errorf("enum %q has no values", name)
	}
	s.Enums[name] = &core.Enum{Name: name, Values: append([]string(nil), values...)}
	return nil
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalizeDefault stringifies a DSL default so desired and replayed states
// compare equal. Booleans render as SQL literals, numbers via strconv.
func normalizeDefault(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
