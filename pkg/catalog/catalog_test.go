package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "PackageID", c.Search.KeyColumn)
	require.Len(t, c.Search.Sources, 2)
	assert.Equal(t, "Source1", c.Search.Sources[0].Name)
	assert.Equal(t, "Source2", c.Search.Sources[1].Name)
	assert.Equal(t, DefaultDatabase, c.Search.Sources[0].Database)

	assert.Equal(t, []string{"Option1", "Option2", "Option3", "Option4", "Option5"}, c.Kinds("Infobox1"))
	assert.Equal(t, c.Kinds("Infobox1"), c.Kinds("Infobox2"))
	assert.Equal(t, []string{"SubOption1", "SubOption2", "SubOption3"}, c.SubSearchKinds())
	assert.Equal(t, []string{DefaultDatabase}, c.Databases())

	opt2, err := c.Plan("Option2")
	require.NoError(t, err)
	require.NotNil(t, opt2.TwoStage)
	levels := make([]string, 0, len(opt2.TwoStage.Levels))
	for _, l := range opt2.TwoStage.Levels {
		levels = append(levels, l.Level)
	}
	assert.Equal(t, []string{"League", "Location", "Sport"}, levels)
	assert.Equal(t, "No data available", opt2.Empty)
	assert.Equal(t, "Level", opt2.EmptyColumn)
	assert.Equal(t, []string{"Col5"}, opt2.Dates)

	opt1, err := c.Plan("Option1")
	require.NoError(t, err)
	assert.Equal(t, 14, opt1.WindowDays)
	assert.Equal(t, "No data available within the last 14 days", opt1.Empty)
	assert.Equal(t, "Col1", opt1.EmptyColumn)

	sub2, err := c.SubSearchPlan("SubOption2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Col2", "Col3", "Col4"}, sub2.Bool)
	assert.Equal(t, "No results found.", sub2.Empty)
}

func TestCatalog_UnknownKind(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Plan("Option9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.ErrUnknownKind))

	_, err = c.SubSearchPlan("Nope")
	assert.True(t, errors.Is(err, diag.ErrUnknownKind))
}

func TestSourceQuery_Render(t *testing.T) {
	q := SourceQuery{SQL: "SELECT * FROM {table} x", Tables: []string{"table7"}, Table: "table7"}
	sql, err := q.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM table7 x", sql)

	q.Table = "users; DROP TABLE table7"
	_, err = q.Render()
	assert.Error(t, err)

	plain := SourceQuery{SQL: "SELECT 1"}
	sql, err = plain.Render()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no sources",
			yaml: `
search:
  columns: [A]
  key_column: A
`,
			want: "at least one source",
		},
		{
			name: "placeholder mismatch",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ? OR B = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
`,
			want: "2 placeholders, 1 params",
		},
		{
			name: "unknown param",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ?", params: [password]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
`,
			want: `unknown param "password"`,
		},
		{
			name: "write query",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "UPDATE t SET A = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
`,
			want: "only SELECT and WITH queries allowed",
		},
		{
			name: "undeclared date column",
			yaml: `
search:
  columns: [A]
  key_column: A
  date_columns: [B]
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
`,
			want: `date column "B" is not a search column`,
		},
		{
			name: "undeclared empty column",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
details:
  panels: [P1]
  plans:
    - kind: K1
      columns: [A]
      empty_column: Z
      query: {sql: "SELECT A FROM t WHERE A = ?", params: [key]}
`,
			want: `empty_column "Z" is not a plan column`,
		},
		{
			name: "plan without query",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
details:
  panels: [P1]
  plans:
    - kind: K1
      columns: [A]
`,
			want: "exactly one of query or two_stage",
		},
		{
			name: "level attribute missing",
			yaml: `
search:
  columns: [A]
  key_column: A
  sources:
    - name: S1
      columns: [A]
      numeric: {sql: "SELECT A FROM t WHERE A = ?", params: [key]}
      text: {sql: "SELECT A FROM t WHERE A LIKE ?", params: [like]}
details:
  panels: [P1]
  plans:
    - kind: K1
      columns: [A, Level]
      tag_column: Level
      two_stage:
        intermediate: {sql: "SELECT X FROM s WHERE k = ?", params: [key], columns: [X]}
        levels:
          - level: L1
            attribute: Y
            query: {sql: "SELECT A FROM t WHERE A = ?", params: ["attr:Y"]}
`,
			want: `attribute "Y" is not an intermediate column`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, diag.ErrConfigInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Search.Sources)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, defaultCatalog, 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Details.Plans, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, diag.ErrConfigInvalid))
}
