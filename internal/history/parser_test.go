package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migen/internal/core"
)

func TestParseCreateTable(t *testing.T) {
	op, err := ParseStatement(`CREATE TABLE posts (
    author_id uuid NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    body text,
    id uuid NOT NULL,
    published boolean NOT NULL DEFAULT false,
    score double precision,
    state post_states NOT NULL DEFAULT 'draft'
)`)
	require.NoError(t, err)

	create, ok := op.(*core.CreateTable)
	require.True(t, ok)
	tbl := create.Table
	assert.Equal(t, "posts", tbl.Name)
	require.Len(t, tbl.Columns, 6)

	author := tbl.Columns["author_id"]
	assert.Equal(t, core.TypeUUID, author.Type)
	assert.False(t, author.Nullable)
	assert.Equal(t, "users", author.References)
	assert.Equal(t, core.OnDeleteCascade, author.OnDelete)

	assert.True(t, tbl.Columns["body"].Nullable, "nullability defaults to true")
	assert.Equal(t, core.TypeFloat, tbl.Columns["score"].Type)

	published := tbl.Columns["published"]
	require.NotNil(t, published.Default)
	assert.Equal(t, "false", *published.Default)

	state := tbl.Columns["state"]
	assert.Equal(t, core.TypeEnum, state.Type)
	assert.Equal(t, "post_states", state.EnumName)
	require.NotNil(t, state.Default)
	assert.Equal(t, "draft", *state.Default)
}

func TestParseEnumStatements(t *testing.T) {
	t.Run("create type", func(t *testing.T) {
		op, err := ParseStatement("CREATE TYPE post_states AS ENUM ('draft', 'published', 'archived')")
		require.NoError(t, err)
		create := op.(*core.CreateEnum)
		assert.Equal(t, "post_states", create.Enum.Name)
		assert.Equal(t, []string{"draft", "published", "archived"}, create.Enum.Values)
	})

	t.Run("add value", func(t *testing.T) {
		op, err := ParseStatement("ALTER TYPE post_states ADD VALUE 'deleted'")
		require.NoError(t, err)
		add := op.(*core.AlterEnumAddValue)
		assert.Equal(t, "post_states", add.Enum)
		assert.Equal(t, "deleted", add.Value)
	})

	t.Run("drop type", func(t *testing.T) {
		op, err := ParseStatement("DROP TYPE post_states")
		require.NoError(t, err)
		assert.Equal(t, "post_states", op.(*core.DropEnum).Name)
	})

	t.Run("escaped quote in value", func(t *testing.T) {
		op, err := ParseStatement("CREATE TYPE moods AS ENUM ('it''s fine')")
		require.NoError(t, err)
		assert.Equal(t, []string{"it's fine"}, op.(*core.CreateEnum).Enum.Values)
	})
}

func TestParseIndexStatements(t *testing.T) {
	t.Run("unique index", func(t *testing.T) {
		op, err := ParseStatement("CREATE UNIQUE INDEX members_org_id_email_key ON members (org_id, email)")
		require.NoError(t, err)
		idx := op.(*core.CreateIndex).Index
		assert.Equal(t, "members_org_id_email_key", idx.Name)
		assert.Equal(t, "members", idx.Table)
		assert.Equal(t, []string{"org_id", "email"}, idx.Columns)
		assert.True(t, idx.Unique)
	})

	t.Run("plain index", func(t *testing.T) {
		op, err := ParseStatement("CREATE INDEX posts_author ON posts (author_id)")
		require.NoError(t, err)
		assert.False(t, op.(*core.CreateIndex).Index.Unique)
	})

	t.Run("drop index", func(t *testing.T) {
		op, err := ParseStatement("DROP INDEX members_org_id_email_key")
		require.NoError(t, err)
		drop := op.(*core.DropIndex)
		assert.Equal(t, "members_org_id_email_key", drop.Name)
		assert.Empty(t, drop.Table, "history statements carry no owning table")
	})

	t.Run("drop index if exists", func(t *testing.T) {
		op, err := ParseStatement("DROP INDEX IF EXISTS members_org_id_email_key")
		require.NoError(t, err)
		assert.Equal(t, "members_org_id_email_key", op.(*core.DropIndex).Name)
	})
}

func TestParseAlterTable(t *testing.T) {
	t.Run("add and drop columns", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE users ADD COLUMN age integer, DROP COLUMN nickname")
		require.NoError(t, err)
		alter := op.(*core.AlterTable)
		assert.Equal(t, "users", alter.Table)
		require.Len(t, alter.Adds, 1)
		assert.Equal(t, "age", alter.Adds[0].Name)
		assert.Equal(t, []string{"nickname"}, alter.Removes)
	})

	t.Run("type change with cast", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE users ALTER COLUMN age TYPE numeric USING age::numeric")
		require.NoError(t, err)
		alter := op.(*core.AlterTable)
		require.Len(t, alter.Changes, 1)
		ch := alter.Changes[0]
		assert.Equal(t, "age", ch.Name)
		require.NotNil(t, ch.Type)
		assert.Equal(t, core.TypeDecimal, *ch.Type)
		assert.True(t, ch.Cast)
	})

	t.Run("type change without cast", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE users ALTER COLUMN age TYPE text")
		require.NoError(t, err)
		ch := op.(*core.AlterTable).Changes[0]
		assert.Equal(t, core.TypeString, *ch.Type)
		assert.False(t, ch.Cast)
	})

	t.Run("nullability", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE users ALTER COLUMN email SET NOT NULL, ALTER COLUMN bio DROP NOT NULL")
		require.NoError(t, err)
		alter := op.(*core.AlterTable)
		require.Len(t, alter.Changes, 2)
		assert.False(t, *alter.Changes[0].Nullable)
		assert.True(t, *alter.Changes[1].Nullable)
	})

	t.Run("defaults", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE users ALTER COLUMN role SET DEFAULT 'member', ALTER COLUMN age DROP DEFAULT")
		require.NoError(t, err)
		alter := op.(*core.AlterTable)
		require.Len(t, alter.Changes, 2)
		require.NotNil(t, alter.Changes[0].Default.Value)
		assert.Equal(t, "member", *alter.Changes[0].Default.Value)
		assert.Nil(t, alter.Changes[1].Default.Value)
	})

	t.Run("constraint replace merges into one change", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE posts DROP CONSTRAINT IF EXISTS posts_author_id_fkey, " +
			"ADD CONSTRAINT posts_author_id_fkey FOREIGN KEY (author_id) REFERENCES users (id) ON DELETE CASCADE")
		require.NoError(t, err)
		alter := op.(*core.AlterTable)
		require.Len(t, alter.Changes, 1)
		ref := alter.Changes[0].Ref
		require.NotNil(t, ref)
		assert.Equal(t, "users", ref.Table)
		assert.Equal(t, core.OnDeleteCascade, ref.OnDelete)
	})

	t.Run("constraint drop alone clears the reference", func(t *testing.T) {
		op, err := ParseStatement("ALTER TABLE posts DROP CONSTRAINT posts_author_id_fkey")
		require.NoError(t, err)
		ch := op.(*core.AlterTable).Changes[0]
		assert.Equal(t, "author_id", ch.Name)
		require.NotNil(t, ch.Ref)
		assert.Empty(t, ch.Ref.Table)
	})

	t.Run("non-conforming constraint name", func(t *testing.T) {
		_, err := ParseStatement("ALTER TABLE posts DROP CONSTRAINT custom_constraint")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not follow")
	})
}

func TestParseDropTable(t *testing.T) {
	op, err := ParseStatement("DROP TABLE users")
	require.NoError(t, err)
	assert.Equal(t, "users", op.(*core.DropTable).Name)
}

func TestParseUnrecognizedShapes(t *testing.T) {
	cases := []string{
		"TRUNCATE TABLE users",
		"CREATE VIEW v AS SELECT 1",
		"ALTER TABLE users RENAME TO people",
		"CREATE TABLE users (id uuid) WITH (fillfactor = 70)",
		"SELECT * FROM users",
		"",
	}
	for _, sql := range cases {
		_, err := ParseStatement(sql)
		assert.Error(t, err, sql)
	}
}

func TestParseDuplicateColumn(t *testing.T) {
	_, err := ParseStatement("CREATE TABLE users (id uuid, id uuid)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}
