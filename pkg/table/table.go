// Package table реализует модель результирующей таблицы
//
// Table - явный контейнер состояния: упорядоченные строки, именованные колонки,
// состояние фильтров (FilterState) и сортировки. Фильтрация не удаляет строки,
// а только пересчитывает видимость. Полная перезагрузка (Load) отбрасывает
// старые строки целиком и очищает фильтры и сортировку.
//
// Каждый запрос на заполнение получает монотонный номер (Begin). Load с номером,
// который уже заменен более новым запросом, отклоняется с ErrStale.
//
// UI наблюдает таблицу через Subscribe и никогда не обращается к внутреннему состоянию.
package table

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// ErrStale - результат устарел: для таблицы уже выдан более новый запрос
var ErrStale = errors.New("stale result discarded")

// Direction - направление сортировки
type Direction int

const (
	Unsorted Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "ASC"
	case Descending:
		return "DESC"
	default:
		return "NONE"
	}
}

// EventKind - тип изменения таблицы
type EventKind string

const (
	EventLoaded   EventKind = "loaded"
	EventReset    EventKind = "reset"
	EventFiltered EventKind = "filtered"
	EventSorted   EventKind = "sorted"
)

// Event - уведомление подписчиков об изменении
type Event struct {
	Kind        EventKind
	Table       string
	Seq         uint64
	Rows        int
	Visible     int
	Diagnostics []diag.Diagnostic
}

// Table - результирующая таблица
type Table struct {
	name string

	mu          sync.RWMutex
	seq         uint64 // последний выданный номер запроса
	loadedSeq   uint64
	populated   bool
	columns     []string
	rows        []Row
	filters     map[string]Filter
	sortColumn  string
	sortDir     Direction
	subscribers map[int]func(Event)
	nextSub     int
}

// New создает пустую таблицу
func New(name string) *Table {
	return &Table{
		name:        name,
		filters:     make(map[string]Filter),
		subscribers: make(map[int]func(Event)),
	}
}

// Name - идентификатор таблицы
func (t *Table) Name() string {
	return t.name
}

// ========== Request sequence ==========

// Begin выдает номер нового запроса; все ранее выданные номера становятся устаревшими
func (t *Table) Begin() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return t.seq
}

// Seq - последний выданный номер запроса
func (t *Table) Seq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seq
}

// IsCurrent проверяет, что номер запроса не заменен более новым
func (t *Table) IsCurrent(seq uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return seq == t.seq
}

// ========== Population ==========

// Load заменяет содержимое таблицы результатом запроса seq.
// Фильтры и сортировка очищаются.
func (t *Table) Load(seq uint64, columns []string, rows []Row) error {
	t.mu.Lock()
	if seq != t.seq {
		t.mu.Unlock()
		return fmt.Errorf("table %s request %d (current %d): %w", t.name, seq, t.seq, ErrStale)
	}

	t.columns = append([]string(nil), columns...)
	t.rows = make([]Row, len(rows))
	for i, r := range rows {
		r = r.clone()
		r.index = i
		r.visible = true
		t.rows[i] = r
	}
	t.filters = make(map[string]Filter)
	t.sortColumn = ""
	t.sortDir = Unsorted
	t.loadedSeq = seq
	t.populated = true

	ev := t.eventLocked(EventLoaded, nil)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return nil
}

// Reset переводит таблицу в пустое состояние
func (t *Table) Reset() {
	t.mu.Lock()
	t.columns = nil
	t.rows = nil
	t.filters = make(map[string]Filter)
	t.sortColumn = ""
	t.sortDir = Unsorted
	t.populated = false

	ev := t.eventLocked(EventReset, nil)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
}

// Populated - true после первой успешной загрузки
func (t *Table) Populated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.populated
}

// ========== Filtering ==========

// SetFilter устанавливает фильтр колонки и пересчитывает видимость.
// Неактивный фильтр (пустой текст) снимает фильтр колонки.
// Ячейки, которые фильтр не может оценить, скрываются и возвращаются как диагностика.
func (t *Table) SetFilter(column string, f Filter) ([]diag.Diagnostic, error) {
	t.mu.Lock()
	if !t.hasColumnLocked(column) {
		t.mu.Unlock()
		return nil, fmt.Errorf("table %s: unknown column %q", t.name, column)
	}

	if f == nil || !f.Active() {
		delete(t.filters, column)
	} else {
		t.filters[column] = f
	}

	diags := t.recomputeLocked()
	ev := t.eventLocked(EventFiltered, diags)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return diags, nil
}

// ClearFilter снимает фильтр колонки
func (t *Table) ClearFilter(column string) []diag.Diagnostic {
	t.mu.Lock()
	delete(t.filters, column)
	diags := t.recomputeLocked()
	ev := t.eventLocked(EventFiltered, diags)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return diags
}

// ClearFilters снимает все фильтры
func (t *Table) ClearFilters() {
	t.mu.Lock()
	t.filters = make(map[string]Filter)
	t.recomputeLocked()
	ev := t.eventLocked(EventFiltered, nil)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
}

// Filters возвращает копию текущего FilterState
func (t *Table) Filters() map[string]Filter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Filter, len(t.filters))
	for k, v := range t.filters {
		out[k] = v
	}
	return out
}

// recomputeLocked - видимость как чистая функция FilterState и значений ячеек
func (t *Table) recomputeLocked() []diag.Diagnostic {
	var diags []diag.Diagnostic

	columns := make([]string, 0, len(t.filters))
	for col := range t.filters {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for i := range t.rows {
		row := &t.rows[i]
		if row.Placeholder {
			row.visible = true
			continue
		}

		visible := true
		for _, col := range columns {
			cell, ok := row.Cells[col]
			if !ok {
				cell = NoData()
			}

			match, err := t.filters[col].Match(cell)
			if err != nil {
				diags = append(diags, diag.Diagnostic{
					Kind:    diag.KindDateParseFailed,
					Scope:   col,
					Row:     row.index,
					Message: err.Error(),
					Err:     err,
				})
				match = false
			}
			if !match {
				visible = false
			}
		}
		row.visible = visible
	}

	return diags
}

// ========== Sorting ==========

// Sort сортирует по колонке; повторный вызов для той же колонки меняет направление.
// Сортировка стабильная, равные значения упорядочены по исходной позиции.
func (t *Table) Sort(column string) (Direction, error) {
	t.mu.Lock()
	if !t.hasColumnLocked(column) {
		t.mu.Unlock()
		return Unsorted, fmt.Errorf("table %s: unknown column %q", t.name, column)
	}

	dir := Ascending
	if t.sortColumn == column && t.sortDir == Ascending {
		dir = Descending
	}
	t.sortColumn = column
	t.sortDir = dir

	mode := columnMode(t.rows, column)
	keyed := make([]keyedRow, len(t.rows))
	for i, r := range t.rows {
		keyed[i] = keyedRow{row: r, key: keyOf(r, column, mode)}
	}

	sort.SliceStable(keyed, func(i, j int) bool {
		a, b := keyed[i], keyed[j]
		cmp := compareKeys(a.key, b.key, mode)
		if cmp == 0 {
			return a.row.index < b.row.index
		}
		if dir == Descending {
			return cmp > 0
		}
		return cmp < 0
	})
	for i := range keyed {
		t.rows[i] = keyed[i].row
	}

	ev := t.eventLocked(EventSorted, nil)
	subs := t.subscribersLocked()
	t.mu.Unlock()

	notify(subs, ev)
	return dir, nil
}

// SortState возвращает текущую колонку и направление сортировки
func (t *Table) SortState() (string, Direction) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortColumn, t.sortDir
}

// ========== Read access ==========

// Columns возвращает канонические колонки
func (t *Table) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.columns...)
}

// Rows возвращает копию всех строк в порядке таблицы
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.clone()
	}
	return out
}

// VisibleRows возвращает копию видимых строк в порядке таблицы
func (t *Table) VisibleRows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		if r.visible {
			out = append(out, r.clone())
		}
	}
	return out
}

// Row возвращает строку по позиции в текущем порядке
func (t *Table) Row(i int) (Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.rows) {
		return Row{}, fmt.Errorf("table %s: row %d out of range (0..%d)", t.name, i, len(t.rows)-1)
	}
	return t.rows[i].clone(), nil
}

// RowCount - число строк, не зависит от фильтров
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// VisibleCount - число видимых строк
func (t *Table) VisibleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visibleLocked()
}

// ========== Subscriptions ==========

// Subscribe регистрирует наблюдателя; возвращает функцию отписки.
// Наблюдатель вызывается вне блокировки таблицы.
func (t *Table) Subscribe(fn func(Event)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// ========== Helpers ==========

func (t *Table) hasColumnLocked(column string) bool {
	for _, c := range t.columns {
		if c == column {
			return true
		}
	}
	return false
}

func (t *Table) visibleLocked() int {
	n := 0
	for _, r := range t.rows {
		if r.visible {
			n++
		}
	}
	return n
}

func (t *Table) eventLocked(kind EventKind, diags []diag.Diagnostic) Event {
	return Event{
		Kind:        kind,
		Table:       t.name,
		Seq:         t.loadedSeq,
		Rows:        len(t.rows),
		Visible:     t.visibleLocked(),
		Diagnostics: diags,
	}
}

func (t *Table) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, t.subscribers[id])
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

// keyedRow - строка с разобранным ключом сортировки
type keyedRow struct {
	row Row
	key sortKey
}
