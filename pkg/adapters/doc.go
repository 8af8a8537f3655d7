/*
Package adapters предоставляет единую границу выполнения запросов к источникам поиска.

# Архитектура двухуровневого адаптера

	┌─────────────────────────────────────────┐
	│   fanout.Dispatcher / detail.Resolver   │
	│  - catalog.SourceQuery (SQL + params)   │
	└─────────────────┬───────────────────────┘
	                  │
	┌─────────────────▼───────────────────────┐
	│  Level 1: Client / Adapter interface    │  ← pkg/adapters/adapter.go
	│                                         │
	│  Execute(ctx, sql, args...) []RawRow    │
	│  Rebind(sql) string                     │
	└─────────────────┬───────────────────────┘
	                  │
	┌─────────────────▼───────────────────────┐
	│  base.SQLClient (database/sql)          │  ← pkg/adapters/base
	│  соединение на запрос, коды ошибок      │
	└─────────────────┬───────────────────────┘
	                  │
	   ┌──────────┬───┴──────┬───────────┐
	┌──▼───┐ ┌────▼───┐ ┌────▼───┐ ┌─────▼──┐
	│MySQL │ │Postgres│ │MS SQL  │ │SQLite  │   ← Level 2: драйверы
	└──────┘ └────────┘ └────────┘ └────────┘

# Level 1: Универсальный интерфейс

Client - то, что нужно поиску: выполнить параметризованный запрос и вернуть
позиционные строки (RawRow). Adapter добавляет жизненный цикл:
Connect, Close, Ping, GetDatabaseVersion.

Execute не паникует наружу. Любой сбой - *diag.Error:
  - ConnectionFailed: не удалось открыть, проверить или получить соединение
  - QueryFailed: синтаксис, выполнение или сканирование строк

# Level 2: Специфичные реализации

  - pkg/adapters/mysql - MySQL/MariaDB (плейсхолдеры "?")
  - pkg/adapters/postgres - PostgreSQL через pgx (плейсхолдеры "$n")
  - pkg/adapters/mssql - MS SQL Server (плейсхолдеры "@pn")
  - pkg/adapters/sqlite - SQLite без CGO (плейсхолдеры "?")

Каталог всегда пишет "?", драйвер переписывает плейсхолдеры через Rebind.

# Использование

	import (
	    "github.com/ruslano69/ezsearch/pkg/adapters"
	    _ "github.com/ruslano69/ezsearch/pkg/adapters/mysql"
	)

	adapter, err := adapters.New(ctx, adapters.Config{
	    Type:    "mysql",
	    Name:    "main",
	    DSN:     "user:pass@tcp(localhost:3306)/catalog",
	    Timeout: 30 * time.Second,
	})
	if err != nil {
	    log.Fatal(err)
	}
	defer adapter.Close(ctx)

	rows, err := adapter.Execute(ctx, "SELECT Col1, Col4 FROM table5 WHERE Col4 LIKE ?", "%cup%")

# Регистрация адаптеров

Адаптеры регистрируются автоматически через init():

	// В pkg/adapters/mysql/adapter.go
	func init() {
	    adapters.Register("mysql", func() adapters.Adapter {
	        return &Adapter{}
	    })
	}

После импорта пакета адаптера он становится доступен через фабрику.

# Создание нового адаптера

 1. Создайте пакет pkg/adapters/yourdb
 2. Встройте *base.SQLClient и откройте его в Connect через base.Open
    с нужным BindStyle
 3. Зарегистрируйте конструктор в init()
*/
package adapters
