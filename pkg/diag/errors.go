// Package diag содержит таксономию ошибок и нефатальные диагностические события.
//
// Ошибки одной операции (экспорт, конфигурация) возвращаются вызывающему как *Error.
// Сбои отдельных источников и непарсящиеся даты в фильтрах не прерывают операцию и
// передаются как Diagnostic рядом с успешным результатом.
package diag

import (
	"errors"
	"fmt"
)

// Kind - код категории ошибки
type Kind string

const (
	// KindConnectionFailed - не удалось открыть/получить соединение с источником
	KindConnectionFailed Kind = "CONNECTION_FAILED"

	// KindQueryFailed - запрос принят соединением, но выполнение или сканирование упало
	KindQueryFailed Kind = "QUERY_FAILED"

	// KindDateParseFailed - значение ячейки не разбирается как дата при активном фильтре
	KindDateParseFailed Kind = "DATE_PARSE_FAILED"

	// KindExportIOFailed - экспорт не смог записать файл
	KindExportIOFailed Kind = "EXPORT_IO_FAILED"

	// KindConfigInvalid - отсутствуют обязательные ключи конфигурации
	KindConfigInvalid Kind = "CONFIG_INVALID"

	// KindUnknownKind - запрошен незарегистрированный тип детального запроса
	KindUnknownKind Kind = "UNKNOWN_KIND"
)

// Error - ошибка с кодом, источником и причиной
type Error struct {
	Kind    Kind
	Source  string
	Message string
	Cause   error
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Source != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.Source)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap возвращает исходную ошибку
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду: errors.Is(err, diag.ErrQueryFailed)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Образцы для errors.Is
var (
	ErrConnectionFailed = &Error{Kind: KindConnectionFailed, Message: "connection failed"}
	ErrQueryFailed      = &Error{Kind: KindQueryFailed, Message: "query failed"}
	ErrDateParseFailed  = &Error{Kind: KindDateParseFailed, Message: "date parse failed"}
	ErrExportIOFailed   = &Error{Kind: KindExportIOFailed, Message: "export failed"}
	ErrConfigInvalid    = &Error{Kind: KindConfigInvalid, Message: "invalid configuration"}
	ErrUnknownKind      = &Error{Kind: KindUnknownKind, Message: "unknown detail kind"}
)

// New создает ошибку с кодом
func New(kind Kind, source, message string) *Error {
	return &Error{Kind: kind, Source: source, Message: message}
}

// Wrap оборачивает причину в ошибку с кодом
func Wrap(kind Kind, source, message string, cause error) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Cause: cause}
}

// KindOf возвращает код ошибки или пустую строку, если err не *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
