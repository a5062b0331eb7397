package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS_SortsPairsByVersion(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(fstest.MapFS{
		"sql/migrations/0010_carts.up.sql":     sqlFile("CREATE TABLE carts (id BIGINT);"),
		"sql/migrations/0010_carts.down.sql":   sqlFile("DROP TABLE carts;"),
		"sql/migrations/0002_members.up.sql":   sqlFile("CREATE TABLE members (id BIGINT);"),
		"sql/migrations/0002_members.down.sql": sqlFile("  DROP TABLE members;\n"),
	})
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, migration{
		Version: 2,
		Name:    "members",
		UpSQL:   "CREATE TABLE members (id BIGINT);",
		DownSQL: "DROP TABLE members;",
	}, migrations[0])
	assert.Equal(t, int64(10), migrations[1].Version)
	assert.Equal(t, "carts", migrations[1].Name)
}

func TestLoadMigrationsFromFS_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantErr: "no migration files found",
		},
		{
			name: "bad file name",
			fsys: fstest.MapFS{
				"sql/migrations/seed_members.sql": sqlFile("SELECT 1;"),
			},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_core.up.sql":   sqlFile(" \n\t"),
				"sql/migrations/0001_core.down.sql": sqlFile("DROP TABLE members;"),
			},
			wantErr: "migration file is empty",
		},
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_core.up.sql": sqlFile("CREATE TABLE members (id BIGINT);"),
			},
			wantErr: "must have both up and down files",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_core.up.sql":     sqlFile("CREATE TABLE members (id BIGINT);"),
				"sql/migrations/0001_orders.down.sql": sqlFile("DROP TABLE members;"),
			},
			wantErr: "name mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadMigrationsFromFS(tt.fsys)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, "shop_core", migrations[0].Name)
	assert.Contains(t, migrations[0].UpSQL, "CREATE TABLE IF NOT EXISTS members")
	assert.Equal(t, "outbox", migrations[1].Name)
	assert.Contains(t, migrations[1].DownSQL, "outbox_messages")
}
