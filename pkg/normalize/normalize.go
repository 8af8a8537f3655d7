// Package normalize преобразует позиционные строки источников в канонические строки таблицы
//
// Преобразование управляется таблицей (Schema): список объявленных колонок запроса,
// список булевых колонок и колонка тега происхождения. Булевость никогда не
// определяется по форме значения: 0/1 в необъявленной колонке остается числом.
package normalize

import (
	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/table"
)

// Отображение булевых значений
const (
	Yes = "Yes"
	No  = "No"
)

// Schema - правило выравнивания строк одного запроса в каноническую схему таблицы
type Schema struct {
	// Canonical - колонки таблицы
	Canonical []string

	// Declared - позиционные колонки запроса (Declared[i] ↔ RawRow[i])
	Declared []string

	// Bool - колонки, значения которых отображаются как Yes/No
	Bool []string

	// TagColumn - колонка, в которую записывается тег происхождения (Source или Level)
	TagColumn string
}

// Row строит каноническую строку из RawRow
//
//  1. позиционные значения выравниваются по Declared
//  2. объявленные булевы колонки: истинное значение → "Yes", иное → "No"
//  3. тег происхождения записывается в TagColumn
//  4. nil и отсутствующие значения → "No data available"
func (s Schema) Row(raw adapters.RawRow, tag string) table.Row {
	boolCols := make(map[string]struct{}, len(s.Bool))
	for _, c := range s.Bool {
		boolCols[c] = struct{}{}
	}

	values := make(map[string]any, len(s.Declared))
	present := make(map[string]bool, len(s.Declared))
	for i, col := range s.Declared {
		if i < len(raw) {
			values[col] = raw[i]
			present[col] = true
		}
	}

	cells := make(map[string]table.Cell, len(s.Canonical))
	for _, col := range s.Canonical {
		if col == s.TagColumn && s.TagColumn != "" {
			cells[col] = table.Text(tag)
			continue
		}

		v := values[col]
		if !present[col] || v == nil {
			cells[col] = table.NoData()
			continue
		}

		if _, ok := boolCols[col]; ok {
			if IsTruthy(v) {
				cells[col] = table.Text(Yes)
			} else {
				cells[col] = table.Text(No)
			}
			continue
		}

		cells[col] = table.Text(FormatValue(v))
	}

	return table.NewRow(tag, cells)
}

// Rows нормализует набор строк одного источника с сохранением порядка
func (s Schema) Rows(raws []adapters.RawRow, tag string) []table.Row {
	rows := make([]table.Row, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, s.Row(raw, tag))
	}
	return rows
}

// Index возвращает позицию объявленной колонки или -1
func (s Schema) Index(column string) int {
	for i, c := range s.Declared {
		if c == column {
			return i
		}
	}
	return -1
}
