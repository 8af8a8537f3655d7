package table

// NoDataText - отображение отсутствующего значения
const NoDataText = "No data available"

// NoResultsText - текст sentinel-строки пустого результата поиска
const NoResultsText = "No results found."

// Cell - значение ячейки: текст или явный маркер "нет данных"
type Cell struct {
	Text   string
	NoData bool
}

// Text создает текстовую ячейку
func Text(s string) Cell {
	return Cell{Text: s}
}

// NoData создает ячейку "нет данных"
func NoData() Cell {
	return Cell{NoData: true}
}

// Display возвращает отображаемую строку ячейки
func (c Cell) Display() string {
	if c.NoData {
		return NoDataText
	}
	return c.Text
}

// Row - каноническая строка таблицы (DisplayRow)
//
// Строка принадлежит ровно одной таблице. Видимость вычисляется таблицей
// из FilterState и никогда не используется как признак существования строки.
type Row struct {
	Cells       map[string]Cell
	Source      string // тег происхождения (источник или Level)
	Placeholder bool   // sentinel/placeholder строка, не фильтруется

	index   int
	visible bool
}

// NewRow создает строку с тегом происхождения
func NewRow(source string, cells map[string]Cell) Row {
	if cells == nil {
		cells = make(map[string]Cell)
	}
	return Row{Cells: cells, Source: source, visible: true}
}

// Placeholder создает строку-заглушку с одной ячейкой в первой колонке
func Placeholder(column, text string) Row {
	return Row{
		Cells:       map[string]Cell{column: Text(text)},
		Placeholder: true,
		visible:     true,
	}
}

// Cell возвращает ячейку колонки; ok=false если ячейки нет
func (r Row) Cell(column string) (Cell, bool) {
	c, ok := r.Cells[column]
	return c, ok
}

// Value возвращает отображаемую строку ячейки или "" если ячейки нет
func (r Row) Value(column string) string {
	c, ok := r.Cells[column]
	if !ok {
		return ""
	}
	return c.Display()
}

// Visible - текущая видимость строки
func (r Row) Visible() bool {
	return r.visible
}

// Index - позиция строки в порядке загрузки
func (r Row) Index() int {
	return r.index
}

// Values возвращает ячейки строки в порядке колонок ("" для отсутствующих)
func (r Row) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = r.Value(col)
	}
	return out
}

func (r Row) clone() Row {
	cells := make(map[string]Cell, len(r.Cells))
	for k, v := range r.Cells {
		cells[k] = v
	}
	r.Cells = cells
	return r
}
