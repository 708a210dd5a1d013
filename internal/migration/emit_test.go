package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migen/internal/core"
)

func TestRenderFileLayout(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	ops := []core.Operation{
		&core.CreateEnum{Enum: &core.Enum{Name: "states", Values: []string{"a", "b"}}},
		&core.DropTable{Name: "legacy"},
	}

	f := Render(ops, 7, now)
	assert.Equal(t, "20240315103000_000007.sql", f.Name)
	assert.Equal(t, 7, f.Version)

	assert.Contains(t, f.Contents, "-- Generated by migen. Do not edit.\n")
	assert.Contains(t, f.Contents, "-- version: 7\n")
	assert.Contains(t, f.Contents, "-- +migrate Up\n")
	assert.Contains(t, f.Contents, "CREATE TYPE states AS ENUM ('a', 'b');\n")
	assert.Contains(t, f.Contents, "DROP TABLE legacy;\n")
	assert.Contains(t, f.Contents, "-- +migrate Down\n")
	assert.Contains(t, f.Contents, "no rollback is generated")
}

func TestRenderTimestampIsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, loc)

	f := Render(nil, 1, now)
	assert.Equal(t, "20240315050000_000001.sql", f.Name)
}

func TestFileWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")
	f := Render([]core.Operation{&core.DropTable{Name: "t"}}, 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	path, err := f.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, f.Name), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.Contents, string(data))
}

func TestCreateTableSQL(t *testing.T) {
	def := "draft"
	tbl := core.NewTable("posts")
	tbl.Columns["id"] = &core.Column{Name: "id", Type: core.TypeUUID}
	tbl.Columns["state"] = &core.Column{Name: "state", Type: core.TypeEnum, EnumName: "post_states", Default: &def}
	tbl.Columns["author_id"] = &core.Column{Name: "author_id", Type: core.TypeUUID, References: "users", OnDelete: core.OnDeleteCascade}
	tbl.Columns["body"] = &core.Column{Name: "body", Type: core.TypeString, Nullable: true}

	sql := SQL(&core.CreateTable{Table: tbl})
	assert.Equal(t, `CREATE TABLE posts (
    author_id uuid NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    body text,
    id uuid NOT NULL,
    state post_states NOT NULL DEFAULT 'draft'
)`, sql)
}

func TestAlterTableSQL(t *testing.T) {
	t.Run("adds and removes", func(t *testing.T) {
		op := &core.AlterTable{
			Table:   "users",
			Adds:    []*core.Column{{Name: "age", Type: core.TypeInteger, Nullable: true}},
			Removes: []string{"nickname"},
		}
		assert.Equal(t, "ALTER TABLE users ADD COLUMN age integer, DROP COLUMN nickname", SQL(op))
	})

	t.Run("type change with cast", func(t *testing.T) {
		typ := core.TypeDecimal
		op := &core.AlterTable{Table: "users", Changes: []*core.ColumnChange{{
			Name: "age", Type: &typ, Cast: true,
		}}}
		assert.Equal(t, "ALTER TABLE users ALTER COLUMN age TYPE numeric USING age::numeric", SQL(op))
	})

	t.Run("nullability and default", func(t *testing.T) {
		v := "member"
		op := &core.AlterTable{Table: "users", Changes: []*core.ColumnChange{{
			Name:     "role",
			Nullable: boolPtr(false),
			Default:  &core.DefaultChange{Value: &v, Type: core.TypeString},
		}}}
		assert.Equal(t, "ALTER TABLE users ALTER COLUMN role SET NOT NULL, ALTER COLUMN role SET DEFAULT 'member'", SQL(op))
	})

	t.Run("drop default", func(t *testing.T) {
		op := &core.AlterTable{Table: "users", Changes: []*core.ColumnChange{{
			Name:    "age",
			Default: &core.DefaultChange{},
		}}}
		assert.Equal(t, "ALTER TABLE users ALTER COLUMN age DROP DEFAULT", SQL(op))
	})

	t.Run("reference replace", func(t *testing.T) {
		op := &core.AlterTable{Table: "posts", Changes: []*core.ColumnChange{{
			Name: "author_id",
			Ref:  &core.RefChange{Table: "users", OnDelete: core.OnDeleteCascade},
		}}}
		assert.Equal(t, "ALTER TABLE posts DROP CONSTRAINT IF EXISTS posts_author_id_fkey, "+
			"ADD CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES users (id) ON DELETE CASCADE", SQL(op))
	})

	t.Run("reference clear", func(t *testing.T) {
		op := &core.AlterTable{Table: "posts", Changes: []*core.ColumnChange{{
			Name: "author_id",
			Ref:  &core.RefChange{},
		}}}
		assert.Equal(t, "ALTER TABLE posts DROP CONSTRAINT IF EXISTS posts_author_id_fkey", SQL(op))
	})
}

func TestIndexAndEnumSQL(t *testing.T) {
	assert.Equal(t, "CREATE UNIQUE INDEX users_email_key ON users (email)",
		SQL(&core.CreateIndex{Index: &core.Index{Name: "users_email_key", Table: "users", Columns: []string{"email"}, Unique: true}}))
	assert.Equal(t, "CREATE INDEX k ON t (a, b)",
		SQL(&core.CreateIndex{Index: &core.Index{Name: "k", Table: "t", Columns: []string{"a", "b"}}}))
	assert.Equal(t, "DROP INDEX IF EXISTS users_email_key", SQL(&core.DropIndex{Name: "users_email_key"}))
	assert.Equal(t, "ALTER TYPE states ADD VALUE 'c'", SQL(&core.AlterEnumAddValue{Enum: "states", Value: "c"}))
	assert.Equal(t, "DROP TYPE states", SQL(&core.DropEnum{Name: "states"}))
}

func TestLiteralRendering(t *testing.T) {
	assert.Equal(t, "42", literal(core.TypeInteger, "42"))
	assert.Equal(t, "-3.5", literal(core.TypeFloat, "-3.5"))
	assert.Equal(t, "0.25", literal(core.TypeDecimal, "0.25"))
	assert.Equal(t, "true", literal(core.TypeBoolean, "true"))
	assert.Equal(t, "'member'", literal(core.TypeString, "member"))
	assert.Equal(t, "'it''s'", literal(core.TypeString, "it's"))
	assert.Equal(t, "'draft'", literal(core.TypeEnum, "draft"))
	assert.Equal(t, "'2024-01-01'", literal(core.TypeDate, "2024-01-01"))

	// The column type decides quoting, not the value's shape: a text default
	// that looks numeric or boolean must still be quoted.
	assert.Equal(t, "'42'", literal(core.TypeString, "42"))
	assert.Equal(t, "'true'", literal(core.TypeString, "true"))
}

func TestDefaultQuotingFollowsColumnType(t *testing.T) {
	code := "42"
	retries := "3"
	tbl := core.NewTable("jobs")
	tbl.Columns["code"] = &core.Column{Name: "code", Type: core.TypeString, Default: &code}
	tbl.Columns["retries"] = &core.Column{Name: "retries", Type: core.TypeInteger, Default: &retries}

	sql := SQL(&core.CreateTable{Table: tbl})
	assert.Contains(t, sql, "code text NOT NULL DEFAULT '42'")
	assert.Contains(t, sql, "retries integer NOT NULL DEFAULT 3")

	v := "true"
	op := &core.AlterTable{Table: "jobs", Changes: []*core.ColumnChange{{
		Name:    "code",
		Default: &core.DefaultChange{Value: &v, Type: core.TypeString},
	}}}
	assert.Equal(t, "ALTER TABLE jobs ALTER COLUMN code SET DEFAULT 'true'", SQL(op))
}

func TestStatements(t *testing.T) {
	stmts := Statements([]core.Operation{
		&core.DropTable{Name: "a"},
		&core.DropEnum{Name: "b"},
	})
	assert.Equal(t, []string{"DROP TABLE a;", "DROP TYPE b;"}, stmts)
}

func boolPtr(v bool) *bool {
	return &v
}
