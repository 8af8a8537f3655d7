// Package security проверяет запросы каталога перед выполнением на источниках.
package security

import (
	"fmt"
	"strings"
	"unicode"
)

// SQLValidator проверяет SQL запросы каталога.
//
// В safe mode (по умолчанию) разрешены только SELECT и WITH запросы:
// каталог только читает источники.
//
// В unsafe mode все запросы разрешены.
type SQLValidator struct {
	safeMode bool
}

// forbidden - ключевые слова, недопустимые в запросах только на чтение
var forbidden = map[string]bool{
	// DML
	"INSERT": true, "UPDATE": true, "DELETE": true, "TRUNCATE": true, "MERGE": true, "REPLACE": true,
	// DDL
	"DROP": true, "CREATE": true, "ALTER": true, "RENAME": true,
	// DCL
	"GRANT": true, "REVOKE": true,
	// Процедуры
	"EXECUTE": true, "EXEC": true, "CALL": true,
	// SQLite
	"PRAGMA": true, "ATTACH": true, "DETACH": true, "VACUUM": true,
	// Транзакции
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true,
	// SELECT ... INTO создает таблицу (MS SQL)
	"INTO": true,
}

// NewSQLValidator создает валидатор; safeMode = только запросы на чтение
func NewSQLValidator(safeMode bool) *SQLValidator {
	return &SQLValidator{safeMode: safeMode}
}

// ReadOnly проверяет запрос валидатором в safe mode
func ReadOnly(sql string) error {
	return NewSQLValidator(true).Validate(sql)
}

// Validate проверяет SQL запрос.
//
// В safe mode:
//   - запрос начинается с SELECT или WITH
//   - нет запрещенных ключевых слов вне строковых литералов
//   - одна команда (";" допустима только в конце)
//   - нет комментариев -- и /* */
func (v *SQLValidator) Validate(sql string) error {
	if !v.safeMode {
		return nil
	}

	code, err := stripLiterals(sql)
	if err != nil {
		return err
	}

	words := keywords(code)
	if len(words) == 0 {
		return fmt.Errorf("empty query")
	}
	if words[0] != "SELECT" && words[0] != "WITH" {
		return fmt.Errorf("only SELECT and WITH queries allowed, got: %s", words[0])
	}

	for _, w := range words {
		if forbidden[w] {
			return fmt.Errorf("forbidden keyword '%s' in read-only query", w)
		}
	}

	if err := checkStatements(code); err != nil {
		return err
	}
	return checkComments(code)
}

// stripLiterals заменяет содержимое строковых литералов '...' пробелами
func stripLiterals(sql string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(sql))

	inLiteral := false
	for _, r := range sql {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			sb.WriteRune(r)
		case inLiteral:
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	if inLiteral {
		return "", fmt.Errorf("unterminated string literal")
	}
	return sb.String(), nil
}

// keywords разбивает запрос на слова в верхнем регистре.
// Квалифицированные имена (x.Col1) дают отдельные слова без точки.
func keywords(code string) []string {
	fields := strings.FieldsFunc(code, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}
	return fields
}

func checkStatements(code string) error {
	trimmed := strings.TrimSpace(code)
	switch strings.Count(trimmed, ";") {
	case 0:
		return nil
	case 1:
		if strings.HasSuffix(trimmed, ";") {
			return nil
		}
		return fmt.Errorf("semicolon allowed only at the end of query")
	default:
		return fmt.Errorf("multiple statements not allowed")
	}
}

func checkComments(code string) error {
	if strings.Contains(code, "--") {
		return fmt.Errorf("SQL comments (--) not allowed")
	}
	if strings.Contains(code, "/*") || strings.Contains(code, "*/") {
		return fmt.Errorf("SQL comments (/* */) not allowed")
	}
	return nil
}

// IsSafeMode возвращает текущий режим валидатора
func (v *SQLValidator) IsSafeMode() bool {
	return v.safeMode
}
