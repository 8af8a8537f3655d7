package table

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

var testColumns = []string{"CustomerID", "Description", "Source", "ExpirationDate"}

func row(source string, values ...string) Row {
	cells := make(map[string]Cell)
	for i, v := range values {
		if v == NoDataText {
			cells[testColumns[i]] = NoData()
			continue
		}
		cells[testColumns[i]] = Text(v)
	}
	return NewRow(source, cells)
}

func loaded(t *testing.T, rows ...Row) *Table {
	t.Helper()
	tbl := New("primary")
	require.NoError(t, tbl.Load(tbl.Begin(), testColumns, rows))
	return tbl
}

func fiveRows() []Row {
	return []Row{
		row("Source1", "1", "Alpha package", "Source1", "2024-01-10 08:00:00"),
		row("Source1", "2", "Beta bundle", "Source1", "2024-02-10 08:00:00"),
		row("Source1", "3", "alpha extra", "Source1", "2024-03-10 08:00:00"),
		row("Source2", "4", "Gamma", "Source2", "2024-04-10 08:00:00"),
		row("Source2", "5", "ALPHA final", "Source2", "2024-05-10 08:00:00"),
	}
}

func visibleIDs(tbl *Table) []string {
	var ids []string
	for _, r := range tbl.VisibleRows() {
		ids = append(ids, r.Value("CustomerID"))
	}
	return ids
}

func TestTable_LoadStates(t *testing.T) {
	tbl := New("primary")
	assert.False(t, tbl.Populated())
	assert.Equal(t, 0, tbl.RowCount())

	require.NoError(t, tbl.Load(tbl.Begin(), testColumns, fiveRows()))
	assert.True(t, tbl.Populated())
	assert.Equal(t, 5, tbl.RowCount())
	assert.Equal(t, 5, tbl.VisibleCount())

	tbl.Reset()
	assert.False(t, tbl.Populated())
	assert.Equal(t, 0, tbl.RowCount())
}

func TestTable_StaleLoadRejected(t *testing.T) {
	tbl := New("primary")

	older := tbl.Begin()
	newer := tbl.Begin()

	require.NoError(t, tbl.Load(newer, testColumns, fiveRows()[:2]))

	err := tbl.Load(older, testColumns, fiveRows())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStale))
	assert.Equal(t, 2, tbl.RowCount())
	assert.False(t, tbl.IsCurrent(older))
	assert.True(t, tbl.IsCurrent(newer))
}

func TestTable_TextFilterNonDestructive(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	steps := []struct {
		column  string
		filter  Filter
		visible []string
	}{
		{"Description", Contains("alpha"), []string{"1", "3", "5"}},
		{"Source", Contains("source2"), []string{"5"}},
		{"Description", Contains(""), []string{"4", "5"}},
		{"Source", Contains(""), []string{"1", "2", "3", "4", "5"}},
	}

	for _, step := range steps {
		diags, err := tbl.SetFilter(step.column, step.filter)
		require.NoError(t, err)
		assert.Empty(t, diags)
		assert.Equal(t, step.visible, visibleIDs(tbl), "after %s %s", step.column, step.filter)
		assert.Equal(t, 5, tbl.RowCount())
	}
}

func TestTable_DateFilter(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	from := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	diags, err := tbl.SetFilter("ExpirationDate", Between(from, to))
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, []string{"2", "3", "4"}, visibleIDs(tbl))

	_, err = tbl.SetFilter("ExpirationDate", OnDate(from))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, visibleIDs(tbl))
}

func TestTable_DateFilterFailsClosed(t *testing.T) {
	rows := fiveRows()
	rows[1] = row("Source1", "2", "Beta bundle", "Source1", "not a date")
	rows[3] = row("Source2", "4", "Gamma", "Source2", NoDataText)
	tbl := loaded(t, rows...)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	var diags []diag.Diagnostic
	require.NotPanics(t, func() {
		var err error
		diags, err = tbl.SetFilter("ExpirationDate", Between(from, to))
		require.NoError(t, err)
	})

	assert.Equal(t, []string{"1", "3", "5"}, visibleIDs(tbl))
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, diag.KindDateParseFailed, d.Kind)
		assert.Equal(t, "ExpirationDate", d.Scope)
	}
	assert.Equal(t, 1, diags[0].Row)
	assert.Equal(t, 3, diags[1].Row)
}

func TestTable_FiltersAreANDed(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	_, err := tbl.SetFilter("Description", Contains("alpha"))
	require.NoError(t, err)
	_, err = tbl.SetFilter("ExpirationDate", Between(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "5"}, visibleIDs(tbl))

	tbl.ClearFilter("Description")
	assert.Equal(t, []string{"3", "4", "5"}, visibleIDs(tbl))

	tbl.ClearFilters()
	assert.Equal(t, 5, tbl.VisibleCount())
}

func TestTable_ReloadClearsFilters(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	_, err := tbl.SetFilter("Description", Contains("gamma"))
	require.NoError(t, err)
	require.Equal(t, 1, tbl.VisibleCount())

	require.NoError(t, tbl.Load(tbl.Begin(), testColumns, fiveRows()[:3]))
	assert.Empty(t, tbl.Filters())
	assert.Equal(t, 3, tbl.VisibleCount())
}

func TestTable_PlaceholderUnfilterable(t *testing.T) {
	tbl := New("primary")
	require.NoError(t, tbl.Load(tbl.Begin(), testColumns, []Row{Placeholder("CustomerID", NoResultsText)}))

	_, err := tbl.SetFilter("Description", Contains("zzz"))
	require.NoError(t, err)
	_, err = tbl.SetFilter("ExpirationDate", OnDate(time.Now()))
	require.NoError(t, err)

	require.Equal(t, 1, tbl.VisibleCount())
	assert.Equal(t, NoResultsText, tbl.VisibleRows()[0].Value("CustomerID"))
	assert.Equal(t, "", tbl.VisibleRows()[0].Value("Description"))
}

func TestTable_UnknownColumn(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	_, err := tbl.SetFilter("Nope", Contains("x"))
	assert.Error(t, err)

	_, err = tbl.Sort("Nope")
	assert.Error(t, err)
}

func TestTable_SortToggleStable(t *testing.T) {
	rows := []Row{
		row("Source1", "10", "b", "Source1", "2024-01-01"),
		row("Source1", "9", "a", "Source1", "2024-01-01"),
		row("Source2", "10", "a", "Source2", "2024-01-01"),
		row("Source2", "100", "c", "Source2", "2024-01-01"),
	}
	tbl := loaded(t, rows...)

	dir, err := tbl.Sort("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, Ascending, dir)
	assert.Equal(t, []string{"9", "10", "10", "100"}, visibleIDs(tbl))
	all := tbl.Rows()
	assert.Equal(t, "b", all[1].Value("Description"), "ties keep load order")
	assert.Equal(t, "a", all[2].Value("Description"))

	dir, err = tbl.Sort("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, Descending, dir)
	assert.Equal(t, []string{"100", "10", "10", "9"}, visibleIDs(tbl))
	all = tbl.Rows()
	assert.Equal(t, "b", all[1].Value("Description"), "ties keep load order when descending")

	dir, err = tbl.Sort("Description")
	require.NoError(t, err)
	assert.Equal(t, Ascending, dir)
	assert.Equal(t, []string{"9", "10", "10", "100"}, visibleIDs(tbl))
}

func TestTable_SortKeepsVisibility(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	_, err := tbl.SetFilter("Description", Contains("alpha"))
	require.NoError(t, err)

	_, err = tbl.Sort("CustomerID")
	require.NoError(t, err)
	_, err = tbl.Sort("CustomerID")
	require.NoError(t, err)

	assert.Equal(t, []string{"5", "3", "1"}, visibleIDs(tbl))
	assert.Equal(t, 5, tbl.RowCount())
}

func TestTable_SortMixedColumnIsOrderIndependent(t *testing.T) {
	orders := [][]string{
		{"9", "10", "1a"},
		{"9", "1a", "10"},
		{"10", "9", "1a"},
		{"10", "1a", "9"},
		{"1a", "9", "10"},
		{"1a", "10", "9"},
	}

	for _, ids := range orders {
		rows := make([]Row, len(ids))
		for i, id := range ids {
			rows[i] = row("Source1", id, "x", "Source1", "2024-01-01")
		}
		tbl := loaded(t, rows...)

		_, err := tbl.Sort("CustomerID")
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "1a", "9"}, visibleIDs(tbl), "input %v", ids)
	}
}

func TestTable_SortColumnMode(t *testing.T) {
	tbl := loaded(t,
		row("Source1", "10", "x", "Source1", "2024-03-01 00:00:00"),
		row("Source1", "9", "x", "Source1", NoDataText),
		row("Source1", "100", "x", "Source1", "2024-01-15"),
	)

	_, err := tbl.Sort("CustomerID")
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10", "100"}, visibleIDs(tbl), "numeric column")

	_, err = tbl.Sort("ExpirationDate")
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "100", "10"}, visibleIDs(tbl), "no data first, then by date")
}

func TestTable_Subscribe(t *testing.T) {
	tbl := New("panel1")

	var events []Event
	cancel := tbl.Subscribe(func(ev Event) {
		events = append(events, ev)
	})

	require.NoError(t, tbl.Load(tbl.Begin(), testColumns, fiveRows()))
	_, err := tbl.SetFilter("Description", Contains("beta"))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventLoaded, events[0].Kind)
	assert.Equal(t, 5, events[0].Visible)
	assert.Equal(t, EventFiltered, events[1].Kind)
	assert.Equal(t, 1, events[1].Visible)
	assert.Equal(t, "panel1", events[1].Table)

	cancel()
	tbl.Reset()
	assert.Len(t, events, 2)
}

func TestTable_RowsAreCopies(t *testing.T) {
	tbl := loaded(t, fiveRows()...)

	rows := tbl.Rows()
	rows[0].Cells["Description"] = Text("mutated")

	r, err := tbl.Row(0)
	require.NoError(t, err)
	assert.Equal(t, "Alpha package", r.Value("Description"))

	_, err = tbl.Row(10)
	assert.Error(t, err)
}

func TestParseDateFilter(t *testing.T) {
	tests := []struct {
		in      string
		exact   bool
		wantErr bool
	}{
		{"2024-01-02", true, false},
		{"2024-01-02..2024-02-01", false, false},
		{" 2024-01-02 .. 2024-02-01 ", false, false},
		{"01/02/2024", false, true},
		{"2024-01-02..bad", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseDateFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exact, f.Exact)
		})
	}
}
