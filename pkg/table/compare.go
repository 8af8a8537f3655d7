package table

import (
	"strconv"
	"strings"
	"time"
)

// compareMode - способ сравнения значений колонки, один на всю сортировку
type compareMode int

const (
	compareText compareMode = iota
	compareNumber
	compareTime
)

// sortKey - предразобранное значение ячейки
type sortKey struct {
	null bool
	text string
	num  float64
	ts   time.Time
}

// columnMode выбирает режим сравнения по всем значимым ячейкам колонки:
// числа, если разбираются все; иначе даты, если разбираются все; иначе строки.
// Пустая колонка сравнивается как строки.
func columnMode(rows []Row, column string) compareMode {
	numeric, dated, seen := true, true, false
	for _, r := range rows {
		c, ok := r.Cells[column]
		if !ok || c.NoData {
			continue
		}
		seen = true
		if numeric {
			if _, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64); err != nil {
				numeric = false
			}
		}
		if dated {
			if _, ok := parseTimestamp(c.Text); !ok {
				dated = false
			}
		}
		if !numeric && !dated {
			break
		}
	}

	switch {
	case !seen:
		return compareText
	case numeric:
		return compareNumber
	case dated:
		return compareTime
	default:
		return compareText
	}
}

// keyOf разбирает ячейку в режиме колонки
func keyOf(r Row, column string, mode compareMode) sortKey {
	c, ok := r.Cells[column]
	if !ok || c.NoData {
		return sortKey{null: true}
	}

	k := sortKey{text: c.Text}
	switch mode {
	case compareNumber:
		k.num, _ = strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
	case compareTime:
		k.ts, _ = parseTimestamp(c.Text)
	}
	return k
}

// compareKeys сравнивает два ключа одного режима
// Возвращает: -1 если a < b, 0 если равны, 1 если a > b
//
// Отсутствующие ячейки и "нет данных" меньше любого значения.
func compareKeys(a, b sortKey, mode compareMode) int {
	switch {
	case a.null && b.null:
		return 0
	case a.null:
		return -1
	case b.null:
		return 1
	}

	switch mode {
	case compareNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	case compareTime:
		return a.ts.Compare(b.ts)
	default:
		return strings.Compare(a.text, b.text)
	}
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	DateLayout,
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
