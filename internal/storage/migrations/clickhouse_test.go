package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second; with a semicolon
CREATE TABLE b (y String DEFAULT 'it''s;fine') ENGINE = Memory;
`
	stmts, err := splitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String DEFAULT 'it''s;fine') ENGINE = Memory", stmts[1])
}

func TestSplitStatements_UnterminatedString(t *testing.T) {
	_, err := splitStatements("SELECT 'a;")
	assert.Error(t, err)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/bankrun")
	require.NoError(t, err)
	assert.Equal(t, "bankrun", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestLoad_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 10;")},
		"m/002_second.sql": {Data: []byte("SELECT 2;")},
		"m/001_first.sql":  {Data: []byte("SELECT 1;")},
		"m/003_empty.sql":  {Data: []byte("  \n")},
		"m/README.md":      {Data: []byte("ignored")},
	}

	got, err := Load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "002_second.sql", got[1].Name)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"no version": {"m/receipts.sql": {Data: []byte("SELECT 1;")}},
		"duplicate": {
			"m/001_a.sql": {Data: []byte("SELECT 1;")},
			"m/001_b.sql": {Data: []byte("SELECT 2;")},
		},
	}
	for name, fsys := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(fsys, "m")
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)

	ch, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		stmts, err := splitStatements(m.SQL)
		require.NoError(t, err, m.Name)
		assert.NotEmpty(t, stmts, m.Name)
	}
}
