// Package sqlite - адаптер SQLite (modernc.org/sqlite, без CGO).
//
// Используется для локальных снимков источников и в интеграционных тестах.
// Пул не хранит простаивающих соединений, поэтому ":memory:" дает новую пустую
// базу на каждый запрос: источником должен быть файл.
package sqlite

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
)

// AdapterType идентификатор SQLite адаптера
const AdapterType = "sqlite"

const driverSqlite = "sqlite"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// connectionPragmas применяются к каждому новому соединению через DSN
var connectionPragmas = []string{
	// Ждать блокировку писателя вместо SQLITE_BUSY
	"busy_timeout(5000)",
	// Временные структуры сортировки/группировки в памяти
	"temp_store(MEMORY)",
	"cache_size(-16000)",
}

// Adapter представляет адаптер для работы с SQLite
type Adapter struct {
	*base.SQLClient
}

// Connect открывает файл базы и проверяет доступность
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	cfg.DSN = withPragmas(cfg.DSN)

	client, err := base.Open(ctx, driverSqlite, AdapterType, base.BindQuestion, cfg)
	if err != nil {
		return err
	}
	a.SQLClient = client.WithVersionQuery("SELECT sqlite_version()")
	return nil
}

// withPragmas добавляет _pragma параметры к DSN
func withPragmas(dsn string) string {
	params := make([]string, 0, len(connectionPragmas))
	for _, p := range connectionPragmas {
		name := p[:strings.IndexByte(p, '(')]
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		params = append(params, "_pragma="+p)
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Close закрывает пул соединений
func (a *Adapter) Close(ctx context.Context) error {
	if a.SQLClient == nil {
		return nil
	}
	return a.SQLClient.Close(ctx)
}

// GetDatabaseType возвращает тип адаптера
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}
