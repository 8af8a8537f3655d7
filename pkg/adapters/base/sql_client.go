package base

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/diag"
)

// SQLClient - общий клиент database/sql для всех драйверов
type SQLClient struct {
	DB     *sql.DB
	Name   string // имя источника для диагностики
	DBType string
	Bind   BindStyle
	Config adapters.Config
	Logger zerolog.Logger

	versionQuery string
}

// Open открывает пул без простаивающих соединений и проверяет доступность.
// Любой сбой возвращается как ConnectionFailed.
func Open(ctx context.Context, driverName, dbType string, bind BindStyle, cfg adapters.Config) (*SQLClient, error) {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, diag.Wrap(diag.KindConnectionFailed, cfg.Name, "failed to open database", err)
	}

	// Каждое освобожденное соединение закрывается физически
	db.SetMaxIdleConns(0)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, diag.Wrap(diag.KindConnectionFailed, cfg.Name, "failed to ping database", err)
	}

	return NewSQLClient(db, dbType, bind, cfg), nil
}

// NewSQLClient оборачивает уже открытый *sql.DB (используется в тестах с sqlmock)
func NewSQLClient(db *sql.DB, dbType string, bind BindStyle, cfg adapters.Config) *SQLClient {
	name := cfg.Name
	if name == "" {
		name = dbType
	}
	return &SQLClient{
		DB:           db,
		Name:         name,
		DBType:       dbType,
		Bind:         bind,
		Config:       cfg,
		Logger:       zerolog.Nop(),
		versionQuery: "SELECT VERSION()",
	}
}

// WithLogger задает логгер клиента
func (c *SQLClient) WithLogger(logger zerolog.Logger) *SQLClient {
	c.Logger = logger.With().Str("source", c.Name).Str("db_type", c.DBType).Logger()
	return c
}

// WithVersionQuery задает запрос версии СУБД
func (c *SQLClient) WithVersionQuery(query string) *SQLClient {
	c.versionQuery = query
	return c
}

// ========== Execution ==========

// WithConn получает отдельное соединение, вызывает fn и освобождает соединение
// на всех путях выхода. Ошибка освобождения только логируется.
func (c *SQLClient) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) (err error) {
	if c.DB == nil {
		return diag.New(diag.KindConnectionFailed, c.Name, "database connection not established")
	}

	if c.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Config.Timeout)
		defer cancel()
	}

	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return diag.Wrap(diag.KindConnectionFailed, c.Name, "failed to acquire connection", err)
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			c.Logger.Warn().Err(cerr).Msg("failed to release connection")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = diag.New(diag.KindQueryFailed, c.Name, fmt.Sprintf("panic during query: %v", r))
		}
	}()

	return fn(ctx, conn)
}

// Execute выполняет запрос и возвращает строки, позиционно выровненные по колонкам запроса
func (c *SQLClient) Execute(ctx context.Context, query string, args ...any) ([]adapters.RawRow, error) {
	var result []adapters.RawRow

	err := c.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, c.Rebind(query), args...)
		if err != nil {
			return diag.Wrap(diag.KindQueryFailed, c.Name, "query failed", err)
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return diag.Wrap(diag.KindQueryFailed, c.Name, "failed to get columns", err)
		}

		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}

			if err := rows.Scan(ptrs...); err != nil {
				return diag.Wrap(diag.KindQueryFailed, c.Name, "failed to scan row", err)
			}

			result = append(result, adapters.RawRow(values))
		}

		if err := rows.Err(); err != nil {
			return diag.Wrap(diag.KindQueryFailed, c.Name, "error iterating rows", err)
		}

		return nil
	})
	if err != nil {
		c.Logger.Debug().Err(err).Msg("query failed")
		return nil, err
	}

	c.Logger.Debug().Int("rows", len(result)).Msg("query completed")
	return result, nil
}

// Rebind переписывает плейсхолдеры под стиль клиента
func (c *SQLClient) Rebind(query string) string {
	return Rebind(c.Bind, query)
}

// ========== Lifecycle ==========

// Ping проверяет доступность источника
func (c *SQLClient) Ping(ctx context.Context) error {
	if c.DB == nil {
		return diag.New(diag.KindConnectionFailed, c.Name, "database connection not established")
	}
	if err := c.DB.PingContext(ctx); err != nil {
		return diag.Wrap(diag.KindConnectionFailed, c.Name, "ping failed", err)
	}
	return nil
}

// Close закрывает пул
func (c *SQLClient) Close(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// GetDatabaseType возвращает тип СУБД
func (c *SQLClient) GetDatabaseType() string {
	return c.DBType
}

// GetDatabaseVersion возвращает версию СУБД
func (c *SQLClient) GetDatabaseVersion(ctx context.Context) (string, error) {
	var version string
	err := c.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, c.versionQuery).Scan(&version)
	})
	if err != nil {
		return "", fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
