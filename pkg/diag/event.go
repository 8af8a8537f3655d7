package diag

import (
	"context"
	"fmt"
	"time"
)

// Diagnostic - нефатальное событие, сопровождающее успешный результат
type Diagnostic struct {
	Kind    Kind
	Scope   string // имя источника или колонки
	Row     int    // индекс строки для DateParseFailed, иначе -1
	Message string
	Err     error
}

// String - строковое представление
func (d Diagnostic) String() string {
	if d.Row >= 0 {
		return fmt.Sprintf("%s %s row %d: %s", d.Kind, d.Scope, d.Row, d.Message)
	}
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Scope, d.Message)
}

// FromError строит диагностику из ошибки источника
func FromError(scope string, err error) Diagnostic {
	kind := KindOf(err)
	if kind == "" {
		kind = KindQueryFailed
	}
	return Diagnostic{Kind: kind, Scope: scope, Row: -1, Message: err.Error(), Err: err}
}

// Operation - операция сессии, о которой сообщается репортерам
type Operation string

const (
	OpSearch    Operation = "search"
	OpDetail    Operation = "detail"
	OpSubSearch Operation = "subsearch"
	OpExport    Operation = "export"
)

// Status - итог операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // часть источников недоступна
	StatusFailure Status = "failure"
)

// Outcome - итог одной завершенной операции сессии
type Outcome struct {
	RequestID   string
	Operation   Operation
	Table       string
	Key         string
	Kind        string
	Rows        int
	Visible     int
	Sources     int
	Failed      int
	Path        string
	Diagnostics []Diagnostic
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Status вычисляет статус по ошибке и числу упавших источников
func (o Outcome) Status() Status {
	switch {
	case o.Err != nil:
		return StatusFailure
	case o.Failed > 0:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

// Summary - "N of M sources unavailable" для UI
func (o Outcome) Summary() string {
	if o.Failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d sources unavailable", o.Failed, o.Sources)
}

// Reporter получает итоги операций (аудит, Redis, брокер)
type Reporter interface {
	Report(ctx context.Context, outcome Outcome) error
}
