package adapters

import (
	"context"
	"sync"
)

// LazyClient подключается к источнику при первом запросе и повторяет подключение
// после сбоя. Недоступный при старте источник дает ConnectionFailed только своим запросам.
type LazyClient struct {
	factory *Factory
	cfg     Config

	mu      sync.Mutex
	adapter Adapter
}

// Lazy создает LazyClient на глобальной фабрике
func Lazy(cfg Config) *LazyClient {
	return globalFactory.Lazy(cfg)
}

// Lazy создает LazyClient на этой фабрике
func (f *Factory) Lazy(cfg Config) *LazyClient {
	return &LazyClient{factory: f, cfg: cfg}
}

func (l *LazyClient) get(ctx context.Context) (Adapter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.adapter != nil {
		return l.adapter, nil
	}
	adapter, err := l.factory.Create(ctx, l.cfg)
	if err != nil {
		return nil, err
	}
	l.adapter = adapter
	return adapter, nil
}

// Execute подключается при необходимости и выполняет запрос
func (l *LazyClient) Execute(ctx context.Context, query string, args ...any) ([]RawRow, error) {
	adapter, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return adapter.Execute(ctx, query, args...)
}

// Rebind переписывает плейсхолдеры (до подключения запрос не меняется)
func (l *LazyClient) Rebind(query string) string {
	l.mu.Lock()
	adapter := l.adapter
	l.mu.Unlock()

	if adapter == nil {
		return query
	}
	return adapter.Rebind(query)
}

// GetDatabaseType возвращает тип СУБД из конфигурации
func (l *LazyClient) GetDatabaseType() string {
	return l.cfg.Type
}

// Connected - подключение установлено
func (l *LazyClient) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adapter != nil
}

// Ping подключается при необходимости и проверяет доступность
func (l *LazyClient) Ping(ctx context.Context) error {
	adapter, err := l.get(ctx)
	if err != nil {
		return err
	}
	return adapter.Ping(ctx)
}

// Close закрывает подключение, если оно было
func (l *LazyClient) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.adapter == nil {
		return nil
	}
	err := l.adapter.Close(ctx)
	l.adapter = nil
	return err
}
