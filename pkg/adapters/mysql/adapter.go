// Package mysql - адаптер MySQL/MariaDB (основное хранилище источников поиска)
package mysql

import (
	"context"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
)

// AdapterType идентификатор MySQL адаптера
const AdapterType = "mysql"

const driverName = "mysql"

// Compile-time check
var _ adapters.Adapter = (*Adapter)(nil)

// Adapter реализует adapters.Adapter для MySQL
type Adapter struct {
	*base.SQLClient
}

func init() {
	// Регистрируем MySQL адаптер в фабрике
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect подключается к MySQL базе данных
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	client, err := base.Open(ctx, driverName, AdapterType, base.BindQuestion, cfg)
	if err != nil {
		return err
	}
	a.SQLClient = client.WithVersionQuery("SELECT VERSION()")
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
