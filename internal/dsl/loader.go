package dsl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// identRe is the shape every entity, attribute, and relation name must take.
// Table and column names are derived from these, so the restriction keeps the
// emitted DDL free of quoting concerns.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// moduleFile is the top-level TOML document.
type moduleFile struct {
	Enums    map[string][]string `toml:"enums"`
	Entities []tomlEntity        `toml:"entities"`
}

// tomlEntity maps [[entities]].
type tomlEntity struct {
	Name       string          `toml:"name"`
	Table      string          `toml:"table"`
	Virtual    bool            `toml:"virtual"`
	Attributes []tomlAttribute `toml:"attributes"`
	Relations  []tomlRelation  `toml:"relations"`
	Keys       [][]string      `toml:"keys"`
	Scope      []string        `toml:"scope"`
}

// tomlAttribute maps [[entities.attributes]].
type tomlAttribute struct {
	Name     string   `toml:"name"`
	Kind     string   `toml:"kind"`
	Values   []string `toml:"values"`
	Optional bool     `toml:"optional"`
	Nullable *bool    `toml:"nullable"`
	Unique   bool     `toml:"unique"`

	// Default accepts string, bool, or number from TOML. The schema builder
	// normalizes everything to a string.
	Default any `toml:"default"`
}

// tomlRelation maps [[entities.relations]].
type tomlRelation struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	Target   string `toml:"target"`
	OnDelete string `toml:"on_delete"`
}

// LoadFile opens the file at the given path and parses it as a schema module.
func LoadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dsl: open file %q: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads TOML content from reader and returns the corresponding Module.
// Only structural validity is checked here; semantic resolution (relation
// targets, enum references) happens in the schema builder.
func Load(r io.Reader) (*Module, error) {
	var mf moduleFile
	if _, err := toml.NewDecoder(r).Decode(&mf); err != nil {
		return nil, fmt.Errorf("dsl: decode error: %w", err)
	}

	mod := &Module{Enums: make(map[string][]string, len(mf.Enums))}
	for name, values := range mf.Enums {
		if !identRe.MatchString(name) {
			return nil, fmt.Errorf("dsl: invalid enum name %q", name)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("dsl: enum %q has no values", name)
		}
		mod.Enums[name] = append([]string(nil), values...)
	}

	seen := make(map[string]bool, len(mf.Entities))
	for i := range mf.Entities {
		e, err := convertEntity(&mf.Entities[i])
		if err != nil {
			return nil, fmt.Errorf("dsl: entity %q: %w", mf.Entities[i].Name, err)
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			return nil, fmt.Errorf("dsl: duplicate entity %q", e.Name)
		}
		seen[key] = true
		mod.Entities = append(mod.Entities, e)
	}

	return mod, nil
}

func convertEntity(te *tomlEntity) (*Entity, error) {
	if strings.TrimSpace(te.Name) == "" {
		return nil, errors.New("entity name is empty")
	}
	if !identRe.MatchString(te.Name) {
		return nil, fmt.Errorf("invalid entity name %q", te.Name)
	}

	table := te.Table
	if table == "" {
		table = te.Name + "s"
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	e := &Entity{
		Name:    te.Name,
		Table:   table,
		Virtual: te.Virtual,
		Scope:   append([]string(nil), te.Scope...),
	}

	seenAttr := make(map[string]bool, len(te.Attributes))
	for i := range te.Attributes {
		a, err := convertAttribute(&te.Attributes[i])
		if err != nil {
			return nil, err
		}
		if seenAttr[a.Name] {
			return nil, fmt.Errorf("duplicate attribute %q", a.Name)
		}
		seenAttr[a.Name] = true
		e.Attributes = append(e.Attributes, a)
	}

	seenRel := make(map[string]bool, len(te.Relations))
	for i := range te.Relations {
		r, err := convertRelation(&te.Relations[i])
		if err != nil {
			return nil, err
		}
		if seenRel[r.Name] {
			return nil, fmt.Errorf("duplicate relation %q", r.Name)
		}
		seenRel[r.Name] = true
		e.Relations = append(e.Relations, r)
	}

	for _, key := range te.Keys {
		if len(key) == 0 {
			return nil, errors.New("empty composite key")
		}
		e.Keys = append(e.Keys, append([]string(nil), key...))
	}

	return e, nil
}

func convertAttribute(ta *tomlAttribute) (*Attribute, error) {
	if strings.TrimSpace(ta.Name) == "" {
		return nil, errors.New("attribute name is empty")
	}
	if !identRe.MatchString(ta.Name) {
		return nil, fmt.Errorf("invalid attribute name %q", ta.Name)
	}
	if strings.TrimSpace(ta.Kind) == "" {
		return nil, fmt.Errorf("attribute %q: kind is empty", ta.Name)
	}
	if len(ta.Values) > 0 && !strings.EqualFold(ta.Kind, "enum") {
		return nil, fmt.Errorf("attribute %q: values are only valid for kind \"enum\"", ta.Name)
	}
	if strings.EqualFold(ta.Kind, "enum") && len(ta.Values) == 0 {
		return nil, fmt.Errorf("attribute %q: enum kind requires values", ta.Name)
	}

	return &Attribute{
		Name:     ta.Name,
		Kind:     strings.ToLower(ta.Kind),
		Values:   append([]string(nil), ta.Values...),
		Optional: ta.Optional,
		Nullable: ta.Nullable,
		Unique:   ta.Unique,
		Default:  ta.Default,
	}, nil
}

func convertRelation(tr *tomlRelation) (*Relation, error) {
	if strings.TrimSpace(tr.Name) == "" {
		return nil, errors.New("relation name is empty")
	}
	if !identRe.MatchString(tr.Name) {
		return nil, fmt.Errorf("invalid relation name %q", tr.Name)
	}

	kind := RelationKind(strings.ToLower(tr.Kind))
	switch kind {
	case BelongsTo, HasMany:
	default:
		return nil, fmt.Errorf("relation %q: unknown kind %q", tr.Name, tr.Kind)
	}

	if strings.TrimSpace(tr.Target) == "" {
		return nil, fmt.Errorf("relation %q: target is empty", tr.Name)
	}

	r := &Relation{Name: tr.Name, Kind: kind, Target: tr.Target}
	switch strings.ToLower(tr.OnDelete) {
	case "":
	case "cascade":
		r.OnDeleteCascade = true
	case "nothing":
	default:
		return nil, fmt.Errorf("relation %q: unknown on_delete %q", tr.Name, tr.OnDelete)
	}

	return r, nil
}
