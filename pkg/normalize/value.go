package normalize

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout - формат отображения даты-времени
const TimestampLayout = "2006-01-02 15:04:05"

// FormatValue конвертирует значение драйвера в отображаемую строку
func FormatValue(val any) string {
	if val == nil {
		return ""
	}

	switch v := val.(type) {
	case []byte:
		return string(v)

	case string:
		return v

	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)

	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)

	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)

	case bool:
		if v {
			return "1"
		}
		return "0"

	case time.Time:
		return v.Format(TimestampLayout)

	case [16]byte:
		// UUID (UNIQUEIDENTIFIER, uuid)
		return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])

	case map[string]any, []any:
		// JSON/JSONB
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)

	case driver.Valuer:
		inner, err := v.Value()
		if err != nil || inner == nil {
			return ""
		}
		if _, loop := inner.(driver.Valuer); loop {
			return fmt.Sprintf("%v", inner)
		}
		return FormatValue(inner)

	case fmt.Stringer:
		return v.String()

	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsTruthy - истинная кодировка булевого флага: байт 0x01 или целое 1
func IsTruthy(val any) bool {
	switch v := val.(type) {
	case []byte:
		// BIT(1) или TINYINT в текстовом протоколе
		return len(v) == 1 && (v[0] == 1 || v[0] == '1')
	case string:
		return v == "\x01" || v == "1"
	case bool:
		return v
	case int:
		return v == 1
	case int8:
		return v == 1
	case int16:
		return v == 1
	case int32:
		return v == 1
	case int64:
		return v == 1
	case uint:
		return v == 1
	case uint8:
		return v == 1
	case uint16:
		return v == 1
	case uint32:
		return v == 1
	case uint64:
		return v == 1
	default:
		return false
	}
}

var parseLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime разбирает значение драйвера как время
func ParseTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v, true
	case []byte:
		return ParseTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Later возвращает более позднее из двух значений даты.
// Если одно значение не разбирается как время, возвращается другое.
func Later(a, b any) any {
	ta, okA := ParseTime(a)
	tb, okB := ParseTime(b)

	switch {
	case okA && okB:
		if tb.After(ta) {
			return b
		}
		return a
	case okA:
		return a
	case okB:
		return b
	case a == nil:
		return b
	default:
		return a
	}
}
