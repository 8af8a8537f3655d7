// Package postgres - адаптер PostgreSQL через pgx (database/sql интерфейс pgx/v5/stdlib)
package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
)

// AdapterType идентификатор PostgreSQL адаптера
const AdapterType = "postgres"

const driverName = "pgx"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с PostgreSQL.
// Плейсхолдеры "?" каталога переписываются в $1, $2, ...
type Adapter struct {
	*base.SQLClient
}

// Connect устанавливает подключение к PostgreSQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	client, err := base.Open(ctx, driverName, AdapterType, base.BindDollar, cfg)
	if err != nil {
		return err
	}
	a.SQLClient = client.WithVersionQuery("SELECT version()")
	return nil
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
