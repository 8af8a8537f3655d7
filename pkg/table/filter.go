package table

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout - формат даты в префиксе ячейки
const DateLayout = "2006-01-02"

// Filter - предикат колонки
//
// Match возвращает ошибку, если значение ячейки не может быть оценено
// (например, не разбирается как дата). Такая строка скрывается.
type Filter interface {
	Match(cell Cell) (bool, error)
	// Active - false означает, что фильтр снимает скрытие колонки
	Active() bool
	String() string
}

// ========== Text Filter ==========

// TextFilter - регистронезависимое вхождение подстроки
type TextFilter struct {
	Value string
}

// Contains создает текстовый фильтр
func Contains(value string) TextFilter {
	return TextFilter{Value: value}
}

// Match проверяет вхождение подстроки
func (f TextFilter) Match(cell Cell) (bool, error) {
	if f.Value == "" {
		return true, nil
	}
	return strings.Contains(strings.ToLower(cell.Display()), strings.ToLower(f.Value)), nil
}

// Active - пустое значение очищает фильтр колонки
func (f TextFilter) Active() bool {
	return f.Value != ""
}

func (f TextFilter) String() string {
	return fmt.Sprintf("contains %q", f.Value)
}

// ========== Date Filter ==========

// DateFilter - точная дата или включительный диапазон From..To
// по префиксу даты (первый токен) значения ячейки
type DateFilter struct {
	From  time.Time
	To    time.Time
	Exact bool
}

// OnDate создает фильтр точной даты
func OnDate(day time.Time) DateFilter {
	d := truncateDay(day)
	return DateFilter{From: d, To: d, Exact: true}
}

// Between создает фильтр включительного диапазона дат
func Between(from, to time.Time) DateFilter {
	return DateFilter{From: truncateDay(from), To: truncateDay(to)}
}

// ParseDateFilter разбирает "YYYY-MM-DD" или "YYYY-MM-DD..YYYY-MM-DD"
func ParseDateFilter(s string) (DateFilter, error) {
	s = strings.TrimSpace(s)
	if from, to, ok := strings.Cut(s, ".."); ok {
		f, err := time.Parse(DateLayout, strings.TrimSpace(from))
		if err != nil {
			return DateFilter{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		t, err := time.Parse(DateLayout, strings.TrimSpace(to))
		if err != nil {
			return DateFilter{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		return Between(f, t), nil
	}

	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return DateFilter{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return OnDate(d), nil
}

// Match сравнивает дату ячейки с диапазоном
func (f DateFilter) Match(cell Cell) (bool, error) {
	day, err := CellDate(cell)
	if err != nil {
		return false, err
	}
	if f.Exact {
		return day.Equal(f.From), nil
	}
	return !day.Before(f.From) && !day.After(f.To), nil
}

// Active - фильтр даты всегда активен
func (f DateFilter) Active() bool {
	return true
}

func (f DateFilter) String() string {
	if f.Exact {
		return "on " + f.From.Format(DateLayout)
	}
	return fmt.Sprintf("between %s and %s", f.From.Format(DateLayout), f.To.Format(DateLayout))
}

// CellDate разбирает префикс даты значения ячейки
func CellDate(cell Cell) (time.Time, error) {
	if cell.NoData {
		return time.Time{}, fmt.Errorf("no date value")
	}
	fields := strings.Fields(cell.Text)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	day, err := time.Parse(DateLayout, fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", fields[0])
	}
	return day, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
