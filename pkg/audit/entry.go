package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// Level - уровень детализации логирования
type Level int

const (
	// LevelMinimal - только основная информация
	LevelMinimal Level = iota

	// LevelStandard - без искомого ключа
	LevelStandard

	// LevelFull - полная информация включая ключ поиска
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel - уровень по имени из конфигурации (пусто = standard)
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return LevelMinimal, nil
	case "", "standard":
		return LevelStandard, nil
	case "full":
		return LevelFull, nil
	default:
		return LevelStandard, fmt.Errorf("unknown audit level %q", s)
	}
}

// Entry - запись в audit логе об одной операции сеанса
type Entry struct {
	// ID - уникальный идентификатор записи
	ID string `json:"id"`

	// Timestamp - время завершения операции
	Timestamp time.Time `json:"timestamp"`

	Operation diag.Operation `json:"operation"`
	Status    diag.Status    `json:"status"`

	// User - оператор или рабочее место
	User string `json:"user,omitempty"`

	// RequestID - идентификатор операции сеанса
	RequestID string `json:"request_id,omitempty"`

	// Table - таблица представления (primary, Infobox1, ...)
	Table string `json:"table,omitempty"`

	// Key - искомый ключ (только LevelFull)
	Key string `json:"key,omitempty"`

	// Kind - тип детального запроса
	Kind string `json:"kind,omitempty"`

	Rows    int `json:"rows"`
	Visible int `json:"visible"`
	Sources int `json:"sources,omitempty"`
	Failed  int `json:"failed,omitempty"`

	// Path - файл экспорта
	Path string `json:"path,omitempty"`

	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`

	// Diagnostics - нефатальные события операции
	Diagnostics []string `json:"diagnostics,omitempty"`

	// Metadata - дополнительные метаданные
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEntry - создать новую audit запись
func NewEntry(operation diag.Operation, status diag.Status) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    status,
	}
}

// FromOutcome - запись по итогу операции сеанса
func FromOutcome(o diag.Outcome) *Entry {
	e := NewEntry(o.Operation, o.Status())
	if !o.FinishedAt.IsZero() {
		e.Timestamp = o.FinishedAt
		e.Duration = o.FinishedAt.Sub(o.StartedAt)
	}
	e.RequestID = o.RequestID
	e.Table = o.Table
	e.Key = o.Key
	e.Kind = o.Kind
	e.Rows = o.Rows
	e.Visible = o.Visible
	e.Sources = o.Sources
	e.Failed = o.Failed
	e.Path = o.Path
	if o.Err != nil {
		e.ErrorMessage = o.Err.Error()
	}
	for _, d := range o.Diagnostics {
		e.Diagnostics = append(e.Diagnostics, d.String())
	}
	return e
}

// WithUser - установить пользователя
func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

// WithError - установить ошибку
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
		e.Status = diag.StatusFailure
	}
	return e
}

// WithMetadata - добавить метаданные
func (e *Entry) WithMetadata(key, value string) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление
func (e *Entry) String() string {
	s := fmt.Sprintf("[%s] %s %s %s (table=%s, rows=%d, visible=%d, duration=%v)",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.User,
		e.Table,
		e.Rows,
		e.Visible,
		e.Duration,
	)
	if e.Failed > 0 {
		s += fmt.Sprintf(" %d of %d sources unavailable", e.Failed, e.Sources)
	}
	if e.ErrorMessage != "" {
		s += " error: " + e.ErrorMessage
	}
	return s
}

// Clone - создать копию записи
func (e *Entry) Clone() *Entry {
	clone := *e

	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	if e.Diagnostics != nil {
		clone.Diagnostics = append([]string(nil), e.Diagnostics...)
	}

	return &clone
}

// FilterByLevel - фильтрация данных по уровню
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Key = ""
		filtered.Path = ""
		filtered.Diagnostics = nil
		filtered.Metadata = nil

	case LevelStandard:
		// Без искомого ключа
		filtered.Key = ""

	case LevelFull:
		// Ничего не фильтруем
	}

	return filtered
}
