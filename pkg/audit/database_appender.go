package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// TimestampLayout - формат времени в таблице аудита (UTC, сравним как строка)
const TimestampLayout = "2006-01-02 15:04:05.000000"

const auditColumns = `id, ts, operation, status, user_name, request_id, table_name, search_key, kind,
	rows_total, rows_visible, sources, failed, path, duration_ms, error_message, diagnostics, metadata`

// DatabaseAppender - запись в SQL-таблицу аудита
type DatabaseAppender struct {
	db        *sql.DB
	tableName string
	level     Level
	batchSize int
	rebind    func(string) string

	mu    sync.Mutex
	batch []*Entry
}

// DatabaseAppenderConfig - конфигурация database appender
type DatabaseAppenderConfig struct {
	// DB - подключение к базе данных
	DB *sql.DB

	// TableName - имя таблицы для аудита (по умолчанию ezsearch_audit)
	TableName string

	// Level - уровень логирования
	Level Level

	// BatchSize - размер batch для группового insert (0 = без batching)
	BatchSize int

	// AutoCreateTable - создать таблицу если не существует
	AutoCreateTable bool

	// Rebind - перевод плейсхолдеров "?" в стиль драйвера (nil = "?")
	Rebind func(string) string
}

// NewDatabaseAppender - создать database appender
func NewDatabaseAppender(ctx context.Context, config DatabaseAppenderConfig) (*DatabaseAppender, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.TableName == "" {
		config.TableName = "ezsearch_audit"
	}
	if config.Rebind == nil {
		config.Rebind = func(q string) string { return q }
	}

	da := &DatabaseAppender{
		db:        config.DB,
		tableName: config.TableName,
		level:     config.Level,
		batchSize: config.BatchSize,
		rebind:    config.Rebind,
	}

	if config.AutoCreateTable {
		if err := da.createTable(ctx); err != nil {
			return nil, fmt.Errorf("failed to create audit table: %w", err)
		}
	}

	return da, nil
}

// createTable - создать таблицу и индексы
func (da *DatabaseAppender) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			ts VARCHAR(32) NOT NULL,
			operation VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			user_name VARCHAR(255),
			request_id VARCHAR(36),
			table_name VARCHAR(64),
			search_key VARCHAR(255),
			kind VARCHAR(64),
			rows_total INTEGER DEFAULT 0,
			rows_visible INTEGER DEFAULT 0,
			sources INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			path TEXT,
			duration_ms BIGINT DEFAULT 0,
			error_message TEXT,
			diagnostics TEXT,
			metadata TEXT
		)
	`, da.tableName)

	if _, err := da.db.ExecContext(ctx, query); err != nil {
		return err
	}

	for _, col := range []string{"ts", "operation", "status", "user_name"} {
		index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)", da.tableName, col, da.tableName, col)
		// Не все СУБД поддерживают IF NOT EXISTS для индексов
		da.db.ExecContext(ctx, index)
	}

	return nil
}

func (da *DatabaseAppender) insertQuery() string {
	return da.rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		da.tableName, auditColumns))
}

func insertArgs(e *Entry) []any {
	diagnostics, _ := json.Marshal(e.Diagnostics)
	metadata, _ := json.Marshal(e.Metadata)
	return []any{
		e.ID,
		e.Timestamp.UTC().Format(TimestampLayout),
		string(e.Operation),
		string(e.Status),
		e.User,
		e.RequestID,
		e.Table,
		e.Key,
		e.Kind,
		e.Rows,
		e.Visible,
		e.Sources,
		e.Failed,
		e.Path,
		e.Duration.Milliseconds(),
		e.ErrorMessage,
		string(diagnostics),
		string(metadata),
	}
}

// Append - записать entry (или поставить в batch)
func (da *DatabaseAppender) Append(ctx context.Context, entry *Entry) error {
	filtered := entry.FilterByLevel(da.level)

	if da.batchSize <= 0 {
		_, err := da.db.ExecContext(ctx, da.insertQuery(), insertArgs(filtered)...)
		if err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
		return nil
	}

	da.mu.Lock()
	defer da.mu.Unlock()

	da.batch = append(da.batch, filtered)
	if len(da.batch) >= da.batchSize {
		return da.flushBatch(ctx)
	}
	return nil
}

// flushBatch - записать batch одной транзакцией; вызывается под mu
func (da *DatabaseAppender) flushBatch(ctx context.Context) error {
	if len(da.batch) == 0 {
		return nil
	}

	tx, err := da.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, da.insertQuery())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range da.batch {
		if _, err := stmt.ExecContext(ctx, insertArgs(entry)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	da.batch = da.batch[:0]
	return nil
}

// Flush - сбросить batch
func (da *DatabaseAppender) Flush() error {
	da.mu.Lock()
	defer da.mu.Unlock()
	return da.flushBatch(context.Background())
}

// Close - сбросить batch (соединение принадлежит вызывающему)
func (da *DatabaseAppender) Close() error {
	return da.Flush()
}

// QueryFilter - фильтр для запроса audit entries
type QueryFilter struct {
	Operation diag.Operation
	Status    diag.Status
	User      string
	Table     string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// where - условие и аргументы фильтра
func (f QueryFilter) where() (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Operation != "" {
		add("operation = ?", string(f.Operation))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.User != "" {
		add("user_name = ?", f.User)
	}
	if f.Table != "" {
		add("table_name = ?", f.Table)
	}
	if !f.StartTime.IsZero() {
		add("ts >= ?", f.StartTime.UTC().Format(TimestampLayout))
	}
	if !f.EndTime.IsZero() {
		add("ts <= ?", f.EndTime.UTC().Format(TimestampLayout))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query - последние audit entries по фильтру (новые первыми)
func (da *DatabaseAppender) Query(ctx context.Context, filter QueryFilter) ([]*Entry, error) {
	where, args := filter.where()
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY ts DESC", auditColumns, da.tableName, where)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := da.db.QueryContext(ctx, da.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                     Entry
			ts, op, status        string
			user, reqID, tbl      sql.NullString
			key, kind, path, emsg sql.NullString
			diags, meta           sql.NullString
			durationMs            int64
		)

		if err := rows.Scan(&e.ID, &ts, &op, &status, &user, &reqID, &tbl, &key, &kind,
			&e.Rows, &e.Visible, &e.Sources, &e.Failed, &path, &durationMs, &emsg, &diags, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.Timestamp, _ = time.ParseInLocation(TimestampLayout, ts, time.UTC)
		e.Operation = diag.Operation(op)
		e.Status = diag.Status(status)
		e.User = user.String
		e.RequestID = reqID.String
		e.Table = tbl.String
		e.Key = key.String
		e.Kind = kind.String
		e.Path = path.String
		e.ErrorMessage = emsg.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if diags.Valid {
			json.Unmarshal([]byte(diags.String), &e.Diagnostics)
		}
		if meta.Valid {
			json.Unmarshal([]byte(meta.String), &e.Metadata)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// Count - количество audit entries по фильтру
func (da *DatabaseAppender) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := filter.where()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", da.tableName, where)

	var count int64
	if err := da.db.QueryRowContext(ctx, da.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// DeleteOlderThan - удалить старые audit entries
func (da *DatabaseAppender) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := da.rebind(fmt.Sprintf("DELETE FROM %s WHERE ts < ?", da.tableName))

	result, err := da.db.ExecContext(ctx, query, before.UTC().Format(TimestampLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}
	return result.RowsAffected()
}
