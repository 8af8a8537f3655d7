// Package export сохраняет видимые строки таблицы в файл.
//
// Экспорт читает снимок таблицы и никогда не меняет ее: скрытые фильтром
// строки пропускаются, порядок строк - текущий порядок таблицы (с учетом сортировки).
// Любой сбой возвращается как diag.Error с кодом ExportIOFailed.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/processors"
	"github.com/ruslano69/ezsearch/pkg/table"
)

// Format - формат файла экспорта
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// TimestampLayout - метка времени в имени файла
const TimestampLayout = "2006-01-02_15-04-05"

// DefaultSubdir - каталог экспорта относительно домашнего
var DefaultSubdir = filepath.Join("Documents", "Ez Search")

// Config - настройки экспорта
type Config struct {
	// Dir - каталог файлов (пусто = ~/Documents/Ez Search)
	Dir string `yaml:"dir"`

	// Format - csv (по умолчанию) или xlsx
	Format Format `yaml:"format"`

	// Compress - сжать CSV в .csv.zst
	Compress bool `yaml:"compress"`

	// CompressionLevel - уровень zstd 1-22 (0 = 3)
	CompressionLevel int `yaml:"compression_level"`

	// S3 - выгрузка готового файла (Bucket пустой = выключено)
	S3 S3Config `yaml:"s3"`

	// Processors - маскирование колонок в файле (таблица не меняется)
	Processors processors.Config `yaml:"processors,omitempty"`
}

// Result - итог экспорта
type Result struct {
	Path     string
	Rows     int
	Bytes    int
	Checksum string // xxh3 записанных байт, hex

	// Location - URL объекта в S3, если выгрузка включена
	Location string
}

// Exporter - сериализатор видимых строк
type Exporter struct {
	config   Config
	chain    *processors.Chain
	uploader Uploader
	now      func() time.Time
	logger   zerolog.Logger
}

// Option - настройка Exporter
type Option func(*Exporter)

// WithUploader задает выгрузку в объектное хранилище
func WithUploader(u Uploader) Option {
	return func(e *Exporter) { e.uploader = u }
}

// WithClock задает время для имени файла
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger задает логгер
func WithLogger(l zerolog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New создает Exporter
func New(config Config, opts ...Option) (*Exporter, error) {
	switch config.Format {
	case "":
		config.Format = FormatCSV
	case FormatCSV, FormatXLSX:
	default:
		return nil, diag.New(diag.KindConfigInvalid, "export", fmt.Sprintf("unknown export format %q", config.Format))
	}
	if config.Compress && config.Format != FormatCSV {
		return nil, diag.New(diag.KindConfigInvalid, "export", "compression is supported for csv only")
	}
	if config.CompressionLevel == 0 {
		config.CompressionLevel = 3
	}

	chain, err := processors.FromConfig(config.Processors)
	if err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, "export", "invalid processors config", err)
	}

	e := &Exporter{
		config: config,
		chain:  chain,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultDir возвращает ~/Documents/Ez Search
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", diag.Wrap(diag.KindExportIOFailed, "export", "failed to resolve home directory", err)
	}
	return filepath.Join(home, DefaultSubdir), nil
}

// FileName - {label}_export_{timestamp}.{ext}
func (e *Exporter) FileName(label string, at time.Time) string {
	return fmt.Sprintf("%s_export_%s.%s", sanitize(label), at.Format(TimestampLayout), e.extension())
}

func (e *Exporter) extension() string {
	if e.config.Format == FormatXLSX {
		return "xlsx"
	}
	if e.config.Compress {
		return "csv.zst"
	}
	return "csv"
}

// Export записывает видимые строки таблицы в новый файл
func (e *Exporter) Export(ctx context.Context, tbl *table.Table, label string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, diag.Wrap(diag.KindExportIOFailed, label, "export canceled", err)
	}

	dir := e.config.Dir
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, diag.Wrap(diag.KindExportIOFailed, dir, "failed to create export directory", err)
	}

	columns := tbl.Columns()
	rows := tbl.VisibleRows()

	values := make([][]string, len(rows))
	for i, row := range rows {
		values[i] = row.Values(columns)
	}
	values, err := e.chain.Process(ctx, columns, values)
	if err != nil {
		return nil, diag.Wrap(diag.KindExportIOFailed, label, "failed to process rows", err)
	}

	var buf bytes.Buffer
	switch e.config.Format {
	case FormatXLSX:
		err = writeXLSX(&buf, sheetName(label), columns, values)
	default:
		err = writeCSV(&buf, columns, values)
	}
	if err != nil {
		return nil, diag.Wrap(diag.KindExportIOFailed, label, "failed to serialize rows", err)
	}

	data := buf.Bytes()
	if e.config.Compress {
		if data, err = compress(data, e.config.CompressionLevel); err != nil {
			return nil, diag.Wrap(diag.KindExportIOFailed, label, "failed to compress export", err)
		}
	}

	path, err := e.writeNew(dir, label, e.now(), data)
	if err != nil {
		return nil, diag.Wrap(diag.KindExportIOFailed, path, "failed to write export file", err)
	}

	res := &Result{
		Path:     path,
		Rows:     len(rows),
		Bytes:    len(data),
		Checksum: fmt.Sprintf("%016x", xxh3.Hash(data)),
	}

	e.logger.Info().
		Str("path", path).
		Int("rows", res.Rows).
		Int("bytes", res.Bytes).
		Str("checksum", res.Checksum).
		Msg("export written")

	if e.uploader != nil {
		location, err := e.uploader.Upload(ctx, filepath.Base(path), data)
		if err != nil {
			// локальный файл уже записан
			return res, diag.Wrap(diag.KindExportIOFailed, path, "failed to upload export", err)
		}
		res.Location = location
		e.logger.Info().Str("location", location).Msg("export uploaded")
	}

	return res, nil
}

// maxNameAttempts - сколько суффиксов пробовать для занятого имени
const maxNameAttempts = 100

// writeNew создает новый файл экспорта и никогда не перезаписывает существующий:
// при занятом имени добавляется суффикс _2, _3, ...
func (e *Exporter) writeNew(dir, label string, at time.Time, data []byte) (string, error) {
	name := e.FileName(label, at)
	stem := strings.TrimSuffix(name, "."+e.extension())

	path := filepath.Join(dir, name)
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		if attempt > 1 {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d.%s", stem, attempt, e.extension()))
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return path, err
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return path, err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return path, err
		}
		return path, nil
	}
	return path, fmt.Errorf("no free file name for %s after %d attempts", name, maxNameAttempts)
}

// sanitize убирает из метки символы, недопустимые в имени файла
func sanitize(label string) string {
	if label == "" {
		return "table"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, label)
}
