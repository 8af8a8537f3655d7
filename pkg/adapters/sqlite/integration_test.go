package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	_ "github.com/ruslano69/ezsearch/pkg/adapters/sqlite"
	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/fanout"
)

// seedSources создает файл базы с таблицами двух источников поиска
func seedSources(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE table5 (Col1 INTEGER, Col2 INTEGER, Col3 TEXT, Col4 TEXT, Col5 TEXT, Col6 INTEGER, Col7 INTEGER)`,
		`CREATE TABLE table6 (Col1 INTEGER, Col2 INTEGER, Col3 TEXT, Col4 TEXT, Col5 TEXT, Col6 INTEGER, Col7 INTEGER)`,
		`INSERT INTO table5 VALUES (7, 1, '42', 'World Cup', '2025-01-31 00:00:00', 0, 1)`,
		`INSERT INTO table5 VALUES (42, 0, '900', 'Premier League', NULL, 1, 0)`,
		`INSERT INTO table6 VALUES (8, 1, '42', 'Cup Final', '2025-03-01 00:00:00', NULL, 1)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func openSource(t *testing.T, path string) adapters.Adapter {
	t.Helper()
	ctx := context.Background()

	adapter, err := adapters.New(ctx, adapters.Config{Type: "sqlite", Name: "main", DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close(ctx) })
	return adapter
}

func TestSQLite_Execute(t *testing.T) {
	adapter := openSource(t, seedSources(t))

	rows, err := adapter.Execute(context.Background(),
		"SELECT Col1, Col4, Col5 FROM table5 WHERE Col3 = ?", "42")
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0][0])
	assert.Equal(t, "World Cup", rows[0][1])

	version, err := adapter.GetDatabaseVersion(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, version)
	assert.Equal(t, "sqlite", adapter.GetDatabaseType())
}

func TestSQLite_QueryFailed(t *testing.T) {
	adapter := openSource(t, seedSources(t))

	_, err := adapter.Execute(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Equal(t, diag.KindQueryFailed, diag.KindOf(err))
}

func TestSQLite_SearchWithDefaultCatalog(t *testing.T) {
	adapter := openSource(t, seedSources(t))
	cat, err := catalog.Default()
	require.NoError(t, err)

	d := fanout.New(map[string]adapters.Client{catalog.DefaultDatabase: adapter})

	t.Run("numeric", func(t *testing.T) {
		res, err := d.Search(context.Background(), cat.Search, "42")
		require.NoError(t, err)

		require.Len(t, res.Rows, 3)
		assert.Equal(t, []string{"7", "Yes", "42", "World Cup", "Source1", "No", "Yes", "2025-01-31 00:00:00"},
			res.Rows[0].Values(res.Columns))
		assert.Equal(t, "42", res.Rows[1].Value("CustomerID"))
		assert.Equal(t, "No data available", res.Rows[1].Value("ExpirationDate"))
		assert.Equal(t, "Source2", res.Rows[2].Value("Source"))
		assert.Equal(t, "No data available", res.Rows[2].Value("Distribution"))
	})

	t.Run("text", func(t *testing.T) {
		res, err := d.Search(context.Background(), cat.Search, "cup")
		require.NoError(t, err)

		require.Len(t, res.Rows, 2)
		assert.Equal(t, "World Cup", res.Rows[0].Value("Description"))
		assert.Equal(t, "Cup Final", res.Rows[1].Value("Description"))
	})

	t.Run("empty", func(t *testing.T) {
		res, err := d.Search(context.Background(), cat.Search, "nothing-matches")
		require.NoError(t, err)

		assert.True(t, res.Empty)
		assert.Equal(t, "No results found.", res.Rows[0].Value("CustomerID"))
	})
}

func TestSQLite_ConnectFailure(t *testing.T) {
	_, err := adapters.New(context.Background(), adapters.Config{
		Type: "sqlite",
		Name: "main",
		DSN:  filepath.Join(t.TempDir(), "missing", "dir", "x.db"),
	})
	require.Error(t, err)
	assert.Equal(t, diag.KindConnectionFailed, diag.KindOf(err))
}
