// Package metrics собирает метрики fan-out запросов к источникам.
package metrics

import (
	"time"
)

// Имена метрик
const (
	SourceQueriesTotal   = "ezsearch_source_queries_total"
	SourceFailuresTotal  = "ezsearch_source_failures_total"
	SourceQuerySeconds   = "ezsearch_source_query_duration_seconds"
	SourceRowsLast       = "ezsearch_source_rows"
	OperationsTotal      = "ezsearch_operations_total"
	OperationSeconds     = "ezsearch_operation_duration_seconds"
	ExportedRowsTotal    = "ezsearch_exported_rows_total"
	DateParseFailedTotal = "ezsearch_date_parse_failed_total"
)

// Collector - интерфейс сбора метрик.
// Метки передаются парами: "source", "Source1", "kind", "search".
type Collector interface {
	IncrementCounter(name string, labels ...string)
	AddCounter(name string, value float64, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer - измерение длительности
type Timer interface {
	// Stop возвращает длительность в секундах
	Stop() float64
}

// NoOpCollector ничего не записывает
type NoOpCollector struct{}

// NewNoOpCollector создает пустой коллектор
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

func (n *NoOpCollector) IncrementCounter(name string, labels ...string)               {}
func (n *NoOpCollector) AddCounter(name string, value float64, labels ...string)      {}
func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}
func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string)     {}

// StartTimer возвращает таймер без записи
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &timer{start: time.Now()}
}

type timer struct {
	start time.Time
}

func (t *timer) Stop() float64 {
	return time.Since(t.start).Seconds()
}
