package history

import (
	"fmt"
	"strings"

	"migen/internal/core"
)

// ParseStatement maps one migration statement to the operation it encodes.
// The grammar is the fixed set of shapes the emitter produces; anything else
// is an error that callers treat as a non-fatal unrecognized shape.
func ParseStatement(sql string) (core.Operation, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	op, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("trailing input after statement: %q", p.peek().text)
	}
	return op, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// accept consumes the next token when it is the given keyword.
func (p *parser) accept(keyword string) bool {
	if t := p.peek(); t.kind == tokIdent && t.text == keyword {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(keyword string) error {
	if !p.accept(keyword) {
		return fmt.Errorf("expected %q, got %q", keyword, p.peek().text)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", fmt.Errorf("expected identifier, got %s", t.kind)
	}
	p.pos++
	return t.text, nil
}

func (p *parser) expectPunct(s string) error {
	t := p.peek()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("expected %q, got %q", s, t.text)
	}
	p.pos++
	return nil
}

func (p *parser) acceptPunct(s string) bool {
	if t := p.peek(); t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseStatement() (core.Operation, error) {
	switch {
	case p.accept("create"):
		switch {
		case p.accept("table"):
			return p.parseCreateTable()
		case p.accept("type"):
			return p.parseCreateEnum()
		case p.accept("unique"):
			if err := p.expect("index"); err != nil {
				return nil, err
			}
			return p.parseCreateIndex(true)
		case p.accept("index"):
			return p.parseCreateIndex(false)
		}
	case p.accept("alter"):
		switch {
		case p.accept("table"):
			return p.parseAlterTable()
		case p.accept("type"):
			return p.parseAlterEnum()
		}
	case p.accept("drop"):
		switch {
		case p.accept("table"):
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &core.DropTable{Name: name}, nil
		case p.accept("type"):
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &core.DropEnum{Name: name}, nil
		case p.accept("index"):
			if p.accept("if") {
				if err := p.expect("exists"); err != nil {
					return nil, err
				}
			}
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &core.DropIndex{Name: name}, nil
		}
	}
	return nil, fmt.Errorf("unrecognized statement shape")
}

func (p *parser) parseCreateTable() (core.Operation, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	t := core.NewTable(name)
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		if _, ok := t.Columns[col.Name]; ok {
			return nil, fmt.Errorf("table %q: duplicate column %q", name, col.Name)
		}
		t.Columns[col.Name] = col
		if p.acceptPunct(",") {
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	return &core.CreateTable{Table: t}, nil
}

// parseColumnDef reads `name type [NULL|NOT NULL] [DEFAULT lit]
// [REFERENCES t (id) [ON DELETE CASCADE]]`. Nullability defaults to true,
// matching the emitter which only writes NOT NULL.
func (p *parser) parseColumnDef() (*core.Column, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	col := &core.Column{Name: name, Nullable: true}
	col.Type, col.EnumName, err = p.parseType()
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", name, err)
	}

	for {
		switch {
		case p.accept("not"):
			if err := p.expect("null"); err != nil {
				return nil, err
			}
			col.Nullable = false
		case p.accept("null"):
			col.Nullable = true
		case p.accept("default"):
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			col.Default = &lit
		case p.accept("references"):
			if err := p.parseReferences(col); err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
		default:
			return col, nil
		}
	}
}

func (p *parser) parseReferences(col *core.Column) error {
	target, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if _, err := p.expectIdent(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	col.References = target

	if p.accept("on") {
		if err := p.expect("delete"); err != nil {
			return err
		}
		if err := p.expect("cascade"); err != nil {
			return err
		}
		col.OnDelete = core.OnDeleteCascade
	}
	return nil
}

// parseType maps a rendered SQL type back to the portable data type. The
// mapping must exactly invert the emitter so equality-based diffing works.
// Any bare identifier outside the scalar set is a named enum reference.
func (p *parser) parseType() (core.DataType, string, error) {
	name, err := p.expectIdent()
	if err != nil {
		return "", "", err
	}

	switch name {
	case "uuid":
		return core.TypeUUID, "", nil
	case "text":
		return core.TypeString, "", nil
	case "integer":
		return core.TypeInteger, "", nil
	case "double":
		if err := p.expect("precision"); err != nil {
			return "", "", err
		}
		return core.TypeFloat, "", nil
	case "boolean":
		return core.TypeBoolean, "", nil
	case "timestamp":
		return core.TypeDatetime, "", nil
	case "date":
		return core.TypeDate, "", nil
	case "numeric":
		return core.TypeDecimal, "", nil
	case "jsonb":
		return core.TypeJSON, "", nil
	}
	return core.TypeEnum, name, nil
}

// parseLiteral reads a default literal: quoted string, number, or boolean.
// The stored form is the bare value, matching the builder's normalization.
func (p *parser) parseLiteral() (string, error) {
	t := p.peek()
	switch {
	case t.kind == tokString:
		p.pos++
		return t.text, nil
	case t.kind == tokNumber:
		p.pos++
		return t.text, nil
	case t.kind == tokIdent && (t.text == "true" || t.text == "false"):
		p.pos++
		return t.text, nil
	}
	return "", fmt.Errorf("expected literal, got %q", t.text)
}

func (p *parser) parseCreateEnum() (core.Operation, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect("as"); err != nil {
		return nil, err
	}
	if err := p.expect("enum"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	e := &core.Enum{Name: name}
	for {
		t := p.peek()
		if t.kind != tokString {
			return nil, fmt.Errorf("enum %q: expected value string, got %q", name, t.text)
		}
		p.pos++
		e.Values = append(e.Values, t.text)
		if p.acceptPunct(",") {
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	return &core.CreateEnum{Enum: e}, nil
}

func (p *parser) parseAlterEnum() (core.Operation, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect("add"); err != nil {
		return nil, err
	}
	if err := p.expect("value"); err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokString {
		return nil, fmt.Errorf("enum %q: expected value string, got %q", name, t.text)
	}
	p.pos++
	return &core.AlterEnumAddValue{Enum: name, Value: t.text}, nil
}

func (p *parser) parseCreateIndex(unique bool) (core.Operation, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect("on"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	idx := &core.Index{Name: name, Table: table, Unique: unique}
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		idx.Columns = append(idx.Columns, col)
		if p.acceptPunct(",") {
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	return &core.CreateIndex{Index: idx}, nil
}

func (p *parser) parseAlterTable() (core.Operation, error) {
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	alter := &core.AlterTable{Table: table}
	changes := make(map[string]*core.ColumnChange)

	change := func(col string) *core.ColumnChange {
		if c, ok := changes[col]; ok {
			return c
		}
		c := &core.ColumnChange{Name: col}
		changes[col] = c
		alter.Changes = append(alter.Changes, c)
		return c
	}

	for {
		if err := p.parseAlterAction(alter, change); err != nil {
			return nil, fmt.Errorf("alter table %q: %w", table, err)
		}
		if p.acceptPunct(",") {
			continue
		}
		break
	}

	return alter, nil
}

func (p *parser) parseAlterAction(alter *core.AlterTable, change func(string) *core.ColumnChange) error {
	switch {
	case p.accept("add"):
		if p.accept("constraint") {
			return p.parseAddConstraint(alter.Table, change)
		}
		p.accept("column")
		col, err := p.parseColumnDef()
		if err != nil {
			return err
		}
		alter.Adds = append(alter.Adds, col)
		return nil

	case p.accept("drop"):
		if p.accept("column") {
			name, err := p.expectIdent()
			if err != nil {
				return err
			}
			alter.Removes = append(alter.Removes, name)
			return nil
		}
		if p.accept("constraint") {
			if p.accept("if") {
				if err := p.expect("exists"); err != nil {
					return err
				}
			}
			name, err := p.expectIdent()
			if err != nil {
				return err
			}
			col, err := columnFromConstraint(alter.Table, name)
			if err != nil {
				return err
			}
			change(col).Ref = &core.RefChange{}
			return nil
		}
		return fmt.Errorf("expected COLUMN or CONSTRAINT after DROP, got %q", p.peek().text)

	case p.accept("alter"):
		p.accept("column")
		name, err := p.expectIdent()
		if err != nil {
			return err
		}
		return p.parseAlterColumn(change(name))
	}
	return fmt.Errorf("unrecognized alter action at %q", p.peek().text)
}

func (p *parser) parseAddConstraint(table string, change func(string) *core.ColumnChange) error {
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	col, err := columnFromConstraint(table, name)
	if err != nil {
		return err
	}
	for _, kw := range []string{"foreign", "key"} {
		if err := p.expect(kw); err != nil {
			return err
		}
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if _, err := p.expectIdent(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.expect("references"); err != nil {
		return err
	}
	target, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if _, err := p.expectIdent(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}

	ref := &core.RefChange{Table: target}
	if p.accept("on") {
		if err := p.expect("delete"); err != nil {
			return err
		}
		if err := p.expect("cascade"); err != nil {
			return err
		}
		ref.OnDelete = core.OnDeleteCascade
	}
	change(col).Ref = ref
	return nil
}

func (p *parser) parseAlterColumn(ch *core.ColumnChange) error {
	switch {
	case p.accept("type"):
		typ, enum, err := p.parseType()
		if err != nil {
			return err
		}
		ch.Type = &typ
		ch.EnumName = enum
		if p.accept("using") {
			if _, err := p.expectIdent(); err != nil {
				return err
			}
			if err := p.expectPunct("::"); err != nil {
				return err
			}
			if _, _, err := p.parseType(); err != nil {
				return err
			}
			ch.Cast = true
		}
		return nil

	case p.accept("set"):
		if p.accept("not") {
			if err := p.expect("null"); err != nil {
				return err
			}
			ch.Nullable = boolPtr(false)
			return nil
		}
		if err := p.expect("default"); err != nil {
			return err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return err
		}
		ch.Default = &core.DefaultChange{Value: &lit}
		return nil

	case p.accept("drop"):
		if p.accept("not") {
			if err := p.expect("null"); err != nil {
				return err
			}
			ch.Nullable = boolPtr(true)
			return nil
		}
		if err := p.expect("default"); err != nil {
			return err
		}
		ch.Default = &core.DefaultChange{}
		return nil
	}
	return fmt.Errorf("column %q: unrecognized alter action at %q", ch.Name, p.peek().text)
}

// columnFromConstraint recovers the column name from a generated foreign-key
// constraint name of the form <table>_<column>_fkey.
func columnFromConstraint(table, name string) (string, error) {
	prefix := table + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "_fkey") {
		return "", fmt.Errorf("constraint %q does not follow the <table>_<column>_fkey convention", name)
	}
	col := strings.TrimSuffix(strings.TrimPrefix(name, prefix), "_fkey")
	if col == "" {
		return "", fmt.Errorf("constraint %q does not name a column", name)
	}
	return col, nil
}

func boolPtr(v bool) *bool {
	return &v
}
