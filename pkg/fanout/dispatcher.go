// Package fanout выполняет один логический запрос против всех зарегистрированных источников.
//
// Источники независимы: сбой одного дает ноль строк и диагностику, остальные
// продолжают работу. Запросы выполняются параллельно, но результаты собираются
// в слоты по порядку регистрации, поэтому порядок строк не зависит от того,
// какой источник ответил первым.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/metrics"
	"github.com/ruslano69/ezsearch/pkg/resilience"
	"github.com/ruslano69/ezsearch/pkg/retry"
)

// Target - один запрос fan-out
type Target struct {
	// Source - имя источника (тег строк, имя circuit breaker, метка метрик)
	Source string

	// Database - имя подключения
	Database string

	Query string
	Args  []any
}

// Outcome - результат одного Target
type Outcome struct {
	Target   Target
	Rows     []adapters.RawRow
	Err      error
	Duration time.Duration
}

// Failed - источник не ответил (в отличие от пустого успешного результата)
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Dispatcher - fan-out по источникам
type Dispatcher struct {
	clients        map[string]adapters.Client
	breakers       *resilience.Group
	retryer        *retry.Retryer
	collector      metrics.Collector
	logger         zerolog.Logger
	maxConcurrency int
}

// Option - настройка Dispatcher
type Option func(*Dispatcher)

// WithBreakers включает circuit breaker на источник
func WithBreakers(group *resilience.Group) Option {
	return func(d *Dispatcher) { d.breakers = group }
}

// WithRetry включает повторы при сбоях подключения
func WithRetry(r *retry.Retryer) Option {
	return func(d *Dispatcher) { d.retryer = r }
}

// WithMetrics задает коллектор метрик
func WithMetrics(c metrics.Collector) Option {
	return func(d *Dispatcher) { d.collector = c }
}

// WithLogger задает логгер
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMaxConcurrency ограничивает число одновременных запросов (0 = число целей)
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) { d.maxConcurrency = n }
}

// New создает Dispatcher для подключений по имени
func New(clients map[string]adapters.Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clients:   clients,
		collector: metrics.NewNoOpCollector(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fan выполняет все цели и возвращает результаты в порядке targets.
// Fan не возвращает ошибку: сбои источников записаны в Outcome.Err.
func (d *Dispatcher) Fan(ctx context.Context, targets []Target) []Outcome {
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}

	for i, target := range targets {
		g.Go(func() error {
			outcomes[i] = d.execute(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// execute выполняет одну цель; паника клиента становится QueryFailed
func (d *Dispatcher) execute(ctx context.Context, target Target) (out Outcome) {
	out.Target = target
	timer := d.collector.StartTimer(metrics.SourceQuerySeconds)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Rows = nil
			out.Err = diag.New(diag.KindQueryFailed, target.Source, fmt.Sprintf("panic during query: %v", r))
		}
		out.Duration = time.Since(start)
		d.record(out, timer.Stop())
	}()

	client, ok := d.clients[target.Database]
	if !ok {
		out.Err = diag.New(diag.KindConnectionFailed, target.Source,
			fmt.Sprintf("no connection configured for database %q", target.Database))
		return out
	}

	var attempts atomic.Int32
	run := func(ctx context.Context) error {
		attempts.Add(1)
		rows, err := client.Execute(ctx, target.Query, target.Args...)
		if err != nil {
			return err
		}
		out.Rows = rows
		return nil
	}

	withRetry := run
	if d.retryer != nil {
		withRetry = func(ctx context.Context) error {
			return d.retryer.Do(ctx, run)
		}
	}

	var err error
	if d.breakers != nil {
		err = d.breakers.Execute(ctx, target.Source, withRetry)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = diag.Wrap(diag.KindConnectionFailed, target.Source, "source temporarily disabled", err)
		}
	} else {
		err = withRetry(ctx)
	}

	if err != nil {
		out.Rows = nil
		if diag.KindOf(err) == "" {
			err = diag.Wrap(diag.KindQueryFailed, target.Source, "query failed", err)
		}
		out.Err = err
	}

	if n := attempts.Load(); n > 1 {
		d.logger.Debug().Str("source", target.Source).Int32("attempts", n).Msg("source retried")
	}
	return out
}

func (d *Dispatcher) record(out Outcome, seconds float64) {
	source := out.Target.Source
	d.collector.IncrementCounter(metrics.SourceQueriesTotal, "source", source)
	d.collector.RecordHistogram(metrics.SourceQuerySeconds, seconds, "source", source)

	if out.Err != nil {
		d.collector.IncrementCounter(metrics.SourceFailuresTotal, "source", source, "kind", string(diag.KindOf(out.Err)))
		d.logger.Warn().
			Err(out.Err).
			Str("source", source).
			Str("database", out.Target.Database).
			Dur("duration", out.Duration).
			Msg("source unavailable")
		return
	}

	d.collector.RecordGauge(metrics.SourceRowsLast, float64(len(out.Rows)), "source", source)
	d.logger.Debug().
		Str("source", source).
		Int("rows", len(out.Rows)).
		Dur("duration", out.Duration).
		Msg("source answered")
}
