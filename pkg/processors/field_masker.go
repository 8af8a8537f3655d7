package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaskPattern определяет тип маскирования
type MaskPattern string

const (
	// MaskPartial - первый и последний символ (email: j***@example.com)
	MaskPartial MaskPattern = "partial"
	// MaskMiddle - скрывает средние цифры (1234 XXXX XXXX 3456)
	MaskMiddle MaskPattern = "middle"
	// MaskStars - все символы кроме разделителей (***-**-****)
	MaskStars MaskPattern = "stars"
	// MaskFirst2Last2 - первые 2 и последние 2 символа (12** ****90)
	MaskFirst2Last2 MaskPattern = "first2_last2"
)

var emailRegex = regexp.MustCompile(`^([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})$`)

// FieldMasker маскирует значения указанных колонок в файлах экспорта
type FieldMasker struct {
	columns map[string]MaskPattern
}

// NewFieldMasker создает маскировщик; неизвестный шаблон - ошибка
func NewFieldMasker(columns map[string]MaskPattern) (*FieldMasker, error) {
	for column, pattern := range columns {
		switch pattern {
		case MaskPartial, MaskMiddle, MaskStars, MaskFirst2Last2:
		default:
			return nil, fmt.Errorf("invalid mask pattern '%s' for column '%s'", pattern, column)
		}
	}
	return &FieldMasker{columns: columns}, nil
}

// Name возвращает имя процессора
func (m *FieldMasker) Name() string {
	return "field_masker"
}

// Process возвращает копию данных с замаскированными колонками.
// Пустые значения не маскируются.
func (m *FieldMasker) Process(ctx context.Context, columns []string, data [][]string) ([][]string, error) {
	indices := make(map[int]MaskPattern)
	for i, column := range columns {
		if pattern, ok := m.columns[column]; ok {
			indices[i] = pattern
		}
	}
	if len(indices) == 0 {
		return data, nil
	}

	result := make([][]string, len(data))
	for i, row := range data {
		masked := append([]string(nil), row...)
		for col, pattern := range indices {
			if col < len(masked) && masked[col] != "" {
				masked[col] = Mask(masked[col], pattern)
			}
		}
		result[i] = masked
	}
	return result, nil
}

// Mask применяет шаблон к значению
func Mask(value string, pattern MaskPattern) string {
	switch pattern {
	case MaskPartial:
		return maskPartial(value)
	case MaskMiddle:
		return maskMiddle(value)
	case MaskFirst2Last2:
		return maskFirst2Last2(value)
	default:
		return maskStars(value)
	}
}

func maskPartial(value string) string {
	if m := emailRegex.FindStringSubmatch(value); len(m) == 3 {
		return m[1][:1] + "***@" + m[2]
	}

	runes := []rune(value)
	if len(runes) <= 2 {
		return "***"
	}
	return string(runes[0]) + "***" + string(runes[len(runes)-1])
}

func maskMiddle(value string) string {
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits <= 4 {
		return strings.Repeat("X", len([]rune(value)))
	}

	visible := 4
	if digits < 8 {
		visible = digits / 2
	}

	runes := []rune(value)
	seen := 0
	for i, r := range runes {
		if unicode.IsDigit(r) {
			seen++
			if seen > visible && seen <= digits-visible {
				runes[i] = 'X'
			}
		}
	}
	return string(runes)
}

// maskStars сохраняет разделители (пробелы, дефисы, скобки, точки, слэши)
func maskStars(value string) string {
	runes := []rune(value)
	for i, r := range runes {
		if !strings.ContainsRune(" -().", r) && r != '/' {
			runes[i] = '*'
		}
	}
	return string(runes)
}

// maskFirst2Last2 сохраняет пробелы на исходных позициях
func maskFirst2Last2(value string) string {
	runes := []rune(value)
	var positions []int
	for i, r := range runes {
		if r != ' ' {
			positions = append(positions, i)
		}
	}
	if len(positions) <= 4 {
		return strings.Repeat("*", len(runes))
	}

	for _, pos := range positions[2 : len(positions)-2] {
		runes[pos] = '*'
	}
	return string(runes)
}
