package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ruslano69/ezsearch/pkg/diag"
	ezt "github.com/ruslano69/ezsearch/pkg/table"
)

// Output formats
const (
	FormatTable    = "table"
	FormatMarkdown = "md"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

// renderTable writes the visible rows of tbl. The "#" column is the row
// position used by select.
func renderTable(w io.Writer, tbl *ezt.Table, format string) error {
	columns := tbl.Columns()
	if len(columns) == 0 {
		_, _ = fmt.Fprintln(w, "(empty)")
		return nil
	}

	if format == FormatJSON {
		return renderJSON(w, tbl)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, 0, len(columns)+1)
	header = append(header, "#")
	for _, col := range columns {
		header = append(header, col)
	}
	t.AppendHeader(header)

	visible := 0
	for pos, row := range tbl.Rows() {
		if !row.Visible() {
			continue
		}
		visible++
		out := make(table.Row, 0, len(columns)+1)
		out = append(out, strconv.Itoa(pos))
		for _, v := range row.Values(columns) {
			out = append(out, v)
		}
		t.AppendRow(out)
	}

	switch format {
	case FormatMarkdown:
		t.RenderMarkdown()
	case FormatCSV:
		t.RenderCSV()
		return nil
	default:
		t.Render()
	}

	_, _ = fmt.Fprintf(w, "(%d of %d rows)\n", visible, tbl.RowCount())
	if column, dir := tbl.SortState(); column != "" && dir != ezt.Unsorted {
		_, _ = fmt.Fprintf(w, "sorted by %s %s\n", column, dir)
	}
	filters := tbl.Filters()
	for _, column := range slices.Sorted(maps.Keys(filters)) {
		_, _ = fmt.Fprintf(w, "filter %s: %s\n", column, filters[column])
	}
	return nil
}

type jsonRow struct {
	Index       int               `json:"index"`
	Source      string            `json:"source,omitempty"`
	Placeholder bool              `json:"placeholder,omitempty"`
	Values      map[string]string `json:"values"`
}

func renderJSON(w io.Writer, tbl *ezt.Table) error {
	columns := tbl.Columns()
	rows := make([]jsonRow, 0, tbl.VisibleCount())
	for pos, row := range tbl.Rows() {
		if !row.Visible() {
			continue
		}
		values := make(map[string]string, len(columns))
		for _, col := range columns {
			if _, ok := row.Cell(col); ok {
				values[col] = row.Value(col)
			}
		}
		rows = append(rows, jsonRow{Index: pos, Source: row.Source, Placeholder: row.Placeholder, Values: values})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Table   string    `json:"table"`
		Columns []string  `json:"columns"`
		Rows    []jsonRow `json:"rows"`
	}{tbl.Name(), columns, rows})
}

// renderDiagnostics writes the partial-failure summary and per-source diagnostics
func renderDiagnostics(w io.Writer, summary string, diags []diag.Diagnostic) {
	if summary != "" {
		_, _ = fmt.Fprintf(w, "! %s\n", summary)
	}
	for _, d := range diags {
		_, _ = fmt.Fprintf(w, "  - %s\n", d.String())
	}
}
