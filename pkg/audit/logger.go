// Package audit ведет журнал операций сеанса (поиск, детализация, экспорт).
//
// AuditLogger реализует diag.Reporter: каждый итог операции превращается в Entry
// и передается во все appenders (файл, консоль через zerolog, SQL-таблица).
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// ErrClosed - запись в закрытый logger
var ErrClosed = errors.New("audit logger is closed")

// AuditLogger - основной логгер аудита
type AuditLogger struct {
	appenders []Appender
	config    LoggerConfig
	entries   chan *Entry
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
}

// LoggerConfig - конфигурация логгера
type LoggerConfig struct {
	// AsyncMode - асинхронная запись в appenders
	AsyncMode bool

	// BufferSize - размер буфера для асинхронного режима
	BufferSize int

	// DefaultUser - пользователь по умолчанию (если не указан в entry)
	DefaultUser string

	// FlushInterval - интервал автоматического flush (0 = отключен)
	FlushInterval time.Duration

	// OnError - callback при ошибке записи
	OnError func(error)
}

// NewLogger - создать новый audit logger
func NewLogger(config LoggerConfig, appenders ...Appender) *AuditLogger {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}

	l := &AuditLogger{
		appenders: appenders,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
	}

	if config.AsyncMode {
		l.entries = make(chan *Entry, config.BufferSize)
		l.wg.Add(1)
		go l.processEntries()
	}

	if config.FlushInterval > 0 {
		l.wg.Add(1)
		go l.autoFlush()
	}

	return l
}

// Report - записать итог операции сеанса (diag.Reporter)
func (l *AuditLogger) Report(ctx context.Context, outcome diag.Outcome) error {
	return l.Log(ctx, FromOutcome(outcome))
}

// Log - записать audit entry
func (l *AuditLogger) Log(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if l.ctx.Err() != nil {
		return ErrClosed
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.User == "" {
		entry.User = l.config.DefaultUser
	}

	if !l.config.AsyncMode {
		return l.writeEntry(ctx, entry)
	}

	select {
	case l.entries <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrClosed
	default:
		// Буфер переполнен, записываем синхронно
		return l.writeEntry(ctx, entry)
	}
}

// writeEntry - записать entry во все appenders
func (l *AuditLogger) writeEntry(ctx context.Context, entry *Entry) error {
	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var errs []error
	for _, appender := range appenders {
		if err := appender.Append(ctx, entry); err != nil {
			errs = append(errs, err)
			l.handleError(fmt.Errorf("appender failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// processEntries - обработка entries в асинхронном режиме
func (l *AuditLogger) processEntries() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.entries:
			l.writeEntry(context.Background(), entry)

		case <-l.ctx.Done():
			l.drain()
			return
		}
	}
}

// drain - дописать оставшиеся entries
func (l *AuditLogger) drain() {
	for {
		select {
		case entry := <-l.entries:
			l.writeEntry(context.Background(), entry)
		default:
			return
		}
	}
}

// autoFlush - периодический flush appenders
func (l *AuditLogger) autoFlush() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.ctx.Done():
			return
		}
	}
}

// Flush - сбросить буферы appenders, которые это поддерживают
func (l *AuditLogger) Flush() error {
	l.mu.RLock()
	appenders := l.appenders
	l.mu.RUnlock()

	var errs []error
	for _, appender := range appenders {
		if flusher, ok := appender.(interface{ Flush() error }); ok {
			if err := flusher.Flush(); err != nil {
				errs = append(errs, err)
				l.handleError(fmt.Errorf("flush failed: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close - дописать очередь, сбросить и закрыть appenders
func (l *AuditLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		l.wg.Wait()
		l.Flush()

		l.mu.RLock()
		appenders := l.appenders
		l.mu.RUnlock()

		var errs []error
		for _, appender := range appenders {
			if cerr := appender.Close(); cerr != nil {
				errs = append(errs, cerr)
				l.handleError(fmt.Errorf("close failed: %w", cerr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// AddAppender - добавить appender
func (l *AuditLogger) AddAppender(appender Appender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appenders = append(l.appenders, appender)
}

func (l *AuditLogger) handleError(err error) {
	if l.config.OnError != nil {
		l.config.OnError(err)
	}
}

// DefaultConfig - асинхронный режим с буфером 1000
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		AsyncMode:  true,
		BufferSize: 1000,
	}
}

// SyncConfig - конфигурация для синхронного режима
func SyncConfig() LoggerConfig {
	return LoggerConfig{}
}
