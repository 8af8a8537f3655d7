// Package session связывает поиск, выбор строки, детальные панели и экспорт
// в одно состояние пользовательского сеанса.
//
// Каждая таблица владеет последовательностью запросов: новый запрос отменяет
// контекст предыдущего незавершенного, а его результат отбрасывается
// (table.ErrStale). Каждая завершенная операция передается репортерам.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/detail"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/export"
	"github.com/ruslano69/ezsearch/pkg/fanout"
	"github.com/ruslano69/ezsearch/pkg/metrics"
	"github.com/ruslano69/ezsearch/pkg/table"
)

// TableID - идентификатор таблицы сеанса
type TableID string

const (
	// Primary - таблица первичного поиска
	Primary TableID = "primary"

	// SubSearchTable - таблица подпоиска
	SubSearchTable TableID = "subsearch"
)

// Ошибки сеанса
var (
	ErrNoSelection   = errors.New("no row selected")
	ErrNotSelectable = errors.New("row cannot be selected")
	ErrUnknownTable  = errors.New("unknown table")
	ErrNoExporter    = errors.New("export is not configured")
	ErrSearchPending = errors.New("search in progress")
	ErrNotDateColumn = errors.New("not a date column")
)

// Selection - выбранная строка первичной таблицы
type Selection struct {
	Row int
	Key string

	// Kinds - доступные типы детальных запросов по панелям
	Kinds map[string][]string

	// seq - номер запроса первичной таблицы, из строк которого взят ключ
	seq uint64
}

// Session - состояние сеанса: таблицы, выбор и незавершенные запросы
type Session struct {
	catalog    *catalog.Catalog
	dispatcher *fanout.Dispatcher
	resolver   *detail.Resolver
	exporter   *export.Exporter
	reporters  []diag.Reporter
	collector  metrics.Collector
	logger     zerolog.Logger

	mu        sync.Mutex
	tables    map[TableID]*table.Table
	order     []TableID
	inflight  map[TableID]context.CancelFunc
	selection *Selection

	// dates - колонки дат загруженного плана каждой таблицы
	dates map[TableID][]string
}

// Option - настройка Session
type Option func(*Session)

// WithExporter включает экспорт
func WithExporter(e *export.Exporter) Option {
	return func(s *Session) { s.exporter = e }
}

// WithReporters добавляет получателей итогов операций
func WithReporters(r ...diag.Reporter) Option {
	return func(s *Session) { s.reporters = append(s.reporters, r...) }
}

// WithMetrics задает коллектор метрик
func WithMetrics(c metrics.Collector) Option {
	return func(s *Session) { s.collector = c }
}

// WithLogger задает логгер
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New создает сеанс: первичная таблица, по одной таблице на панель и таблица подпоиска
func New(cat *catalog.Catalog, dispatcher *fanout.Dispatcher, resolver *detail.Resolver, opts ...Option) *Session {
	s := &Session{
		catalog:    cat,
		dispatcher: dispatcher,
		resolver:   resolver,
		collector:  metrics.NewNoOpCollector(),
		logger:     zerolog.Nop(),
		tables:     make(map[TableID]*table.Table),
		inflight:   make(map[TableID]context.CancelFunc),
		dates:      make(map[TableID][]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.addTable(Primary)
	for _, panel := range cat.Details.Panels {
		s.addTable(TableID(panel))
	}
	s.addTable(SubSearchTable)

	return s
}

func (s *Session) addTable(id TableID) {
	s.tables[id] = table.New(string(id))
	s.order = append(s.order, id)
}

// Tables возвращает идентификаторы таблиц в порядке создания
func (s *Session) Tables() []TableID {
	return append([]TableID(nil), s.order...)
}

// Table возвращает таблицу по идентификатору
func (s *Session) Table(id TableID) (*table.Table, error) {
	tbl, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return tbl, nil
}

// Selection возвращает текущий выбор или nil
func (s *Session) Selection() *Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return nil
	}
	sel := *s.selection
	return &sel
}

// DateColumns возвращает колонки, допускающие фильтр по дате
func (s *Session) DateColumns(id TableID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dates[id]...)
}

// Close отменяет все незавершенные запросы
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.inflight {
		cancel()
		delete(s.inflight, id)
	}
}

// ========== Operations ==========

// Search выполняет первичный поиск и загружает результат в первичную таблицу.
// Новый поиск сбрасывает выбор и детальные панели.
func (s *Session) Search(ctx context.Context, key string) (*table.Table, *fanout.Result, error) {
	tbl := s.tables[Primary]
	ctx, seq, done := s.begin(ctx, Primary, tbl)
	defer done()

	s.clearSelection()

	out := s.newOutcome(diag.OpSearch, Primary)
	out.Key = key

	res, err := s.dispatcher.Search(ctx, s.catalog.Search, key)
	if err == nil {
		err = tbl.Load(seq, res.Columns, res.Rows)
	}
	if err != nil {
		err = s.staleOr(tbl, seq, err)
		s.finish(ctx, out, err)
		return nil, nil, err
	}

	// выбор, сделанный по старым строкам, не переживает загрузку
	s.mu.Lock()
	if s.selection != nil && s.selection.seq != seq {
		s.selection = nil
	}
	s.dates[Primary] = s.catalog.Search.Dates
	s.mu.Unlock()

	out.Rows = tbl.RowCount()
	out.Visible = tbl.VisibleCount()
	out.Sources = res.Total
	out.Failed = res.Failed
	out.Diagnostics = res.Diagnostics
	s.finish(ctx, out, nil)

	return tbl, res, nil
}

// Select выбирает строку первичной таблицы по текущей позиции.
// Пока первичный поиск не завершен, выбор невозможен.
func (s *Session) Select(row int) (*Selection, error) {
	tbl := s.tables[Primary]

	s.mu.Lock()
	_, pending := s.inflight[Primary]
	s.mu.Unlock()
	if pending {
		return nil, ErrSearchPending
	}
	seq := tbl.Seq()

	r, err := tbl.Row(row)
	if err != nil {
		return nil, err
	}
	if r.Placeholder {
		return nil, fmt.Errorf("%w: placeholder row", ErrNotSelectable)
	}

	cell, ok := r.Cell(s.catalog.Search.KeyColumn)
	if !ok || cell.NoData || cell.Text == "" {
		return nil, fmt.Errorf("%w: row %d has no %s", ErrNotSelectable, row, s.catalog.Search.KeyColumn)
	}

	sel := &Selection{Row: row, Key: cell.Text, Kinds: make(map[string][]string), seq: seq}
	for _, panel := range s.catalog.Details.Panels {
		sel.Kinds[panel] = s.resolver.Kinds(panel)
	}

	s.mu.Lock()
	if !tbl.IsCurrent(seq) {
		s.mu.Unlock()
		return nil, ErrSearchPending
	}
	s.selection = sel
	s.mu.Unlock()

	copied := *sel
	return &copied, nil
}

// RunDetail выполняет детальный запрос kind для выбранной строки в панели panel
func (s *Session) RunDetail(ctx context.Context, kind, panel string) (*table.Table, error) {
	sel := s.Selection()
	if sel == nil || !s.tables[Primary].IsCurrent(sel.seq) {
		return nil, ErrNoSelection
	}

	id := TableID(panel)
	tbl, ok := s.tables[id]
	if !ok || id == Primary || id == SubSearchTable {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, panel)
	}
	if !contains(sel.Kinds[panel], kind) {
		return nil, diag.New(diag.KindUnknownKind, panel, fmt.Sprintf("kind %q is not available on %s", kind, panel))
	}

	ctx, seq, done := s.begin(ctx, id, tbl)
	defer done()

	out := s.newOutcome(diag.OpDetail, id)
	out.Key = sel.Key
	out.Kind = kind

	res, err := s.resolver.Resolve(ctx, kind, sel.Key)
	return s.loadResolution(ctx, tbl, seq, res, err, out)
}

// SubSearch выполняет подпоиск kind в таблице подпоиска
func (s *Session) SubSearch(ctx context.Context, kind string) (*table.Table, error) {
	tbl := s.tables[SubSearchTable]
	ctx, seq, done := s.begin(ctx, SubSearchTable, tbl)
	defer done()

	out := s.newOutcome(diag.OpSubSearch, SubSearchTable)
	out.Kind = kind

	res, err := s.resolver.SubSearch(ctx, kind)
	return s.loadResolution(ctx, tbl, seq, res, err, out)
}

func (s *Session) loadResolution(ctx context.Context, tbl *table.Table, seq uint64, res *detail.Resolution, err error, out diag.Outcome) (*table.Table, error) {
	if err == nil {
		err = tbl.Load(seq, res.Columns, res.Rows)
	}
	if err != nil {
		err = s.staleOr(tbl, seq, err)
		s.finish(ctx, out, err)
		return nil, err
	}

	s.mu.Lock()
	s.dates[TableID(tbl.Name())] = res.Dates
	s.mu.Unlock()

	out.Rows = tbl.RowCount()
	out.Visible = tbl.VisibleCount()
	out.Sources = res.Queries
	out.Failed = res.Failed
	out.Diagnostics = res.Diagnostics
	s.finish(ctx, out, nil)

	return tbl, nil
}

// SetFilter задает фильтр колонки; диагностика - строки с неразборчивой датой.
// Фильтр по дате допускается только для колонок дат загруженного плана.
func (s *Session) SetFilter(id TableID, column string, f table.Filter) ([]diag.Diagnostic, error) {
	tbl, err := s.Table(id)
	if err != nil {
		return nil, err
	}
	if _, ok := f.(table.DateFilter); ok {
		if dates := s.DateColumns(id); !contains(dates, column) {
			return nil, fmt.Errorf("%w: %s.%s (date columns: %s)", ErrNotDateColumn, id, column, strings.Join(dates, ", "))
		}
	}
	diags, err := tbl.SetFilter(column, f)
	if err != nil {
		return nil, err
	}
	s.countDateFailures(id, diags)
	return diags, nil
}

// ClearFilter снимает фильтр колонки
func (s *Session) ClearFilter(id TableID, column string) ([]diag.Diagnostic, error) {
	tbl, err := s.Table(id)
	if err != nil {
		return nil, err
	}
	diags := tbl.ClearFilter(column)
	s.countDateFailures(id, diags)
	return diags, nil
}

// Sort переключает сортировку таблицы по колонке
func (s *Session) Sort(id TableID, column string) (table.Direction, error) {
	tbl, err := s.Table(id)
	if err != nil {
		return table.Unsorted, err
	}
	return tbl.Sort(column)
}

// ExportVisible сохраняет видимые строки таблицы; пустая метка = имя таблицы
func (s *Session) ExportVisible(ctx context.Context, id TableID, label string) (*export.Result, error) {
	tbl, err := s.Table(id)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, ErrNoExporter
	}
	if label == "" {
		label = string(id)
	}

	out := s.newOutcome(diag.OpExport, id)
	out.Kind = label

	res, err := s.exporter.Export(ctx, tbl, label)
	if res != nil {
		out.Path = res.Path
		out.Rows = res.Rows
		out.Visible = res.Rows
		s.collector.AddCounter(metrics.ExportedRowsTotal, float64(res.Rows), "table", string(id))
	}
	s.finish(ctx, out, err)

	return res, err
}

// ========== Internals ==========

// begin открывает новый запрос таблицы: отменяет предыдущий и выдает seq
func (s *Session) begin(ctx context.Context, id TableID, tbl *table.Table) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.inflight[id]; ok {
		prev()
	}
	seq := tbl.Begin()
	s.inflight[id] = cancel
	s.mu.Unlock()

	done := func() {
		s.mu.Lock()
		if tbl.IsCurrent(seq) {
			delete(s.inflight, id)
		}
		s.mu.Unlock()
		cancel()
	}
	return ctx, seq, done
}

// clearSelection сбрасывает выбор и панели; незавершенные детальные запросы вытесняются
func (s *Session) clearSelection() {
	s.mu.Lock()
	s.selection = nil
	for _, panel := range s.catalog.Details.Panels {
		id := TableID(panel)
		if cancel, ok := s.inflight[id]; ok {
			cancel()
			delete(s.inflight, id)
		}
		tbl := s.tables[id]
		tbl.Begin()
		tbl.Reset()
		delete(s.dates, id)
	}
	s.mu.Unlock()
}

// staleOr заменяет ошибку отмены вытесненного запроса на table.ErrStale
func (s *Session) staleOr(tbl *table.Table, seq uint64, err error) error {
	if errors.Is(err, table.ErrStale) {
		return err
	}
	if !tbl.IsCurrent(seq) {
		return fmt.Errorf("%s request %d superseded: %w", tbl.Name(), seq, table.ErrStale)
	}
	return err
}

func (s *Session) newOutcome(op diag.Operation, id TableID) diag.Outcome {
	return diag.Outcome{
		RequestID: uuid.NewString(),
		Operation: op,
		Table:     string(id),
		StartedAt: time.Now(),
	}
}

// finish дополняет итог, пишет метрики и отправляет итог репортерам
func (s *Session) finish(ctx context.Context, out diag.Outcome, err error) {
	out.Err = err
	out.FinishedAt = time.Now()

	status := out.Status()
	if errors.Is(err, table.ErrStale) {
		status = "stale"
	}
	s.collector.IncrementCounter(metrics.OperationsTotal, "operation", string(out.Operation), "status", string(status))
	s.collector.RecordHistogram(metrics.OperationSeconds, out.FinishedAt.Sub(out.StartedAt).Seconds(),
		"operation", string(out.Operation))

	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Str("request_id", out.RequestID).
		Str("operation", string(out.Operation)).
		Str("table", out.Table).
		Str("status", string(status)).
		Int("rows", out.Rows).
		Int("failed", out.Failed).
		Msg("operation finished")

	rctx := context.WithoutCancel(ctx)
	for _, r := range s.reporters {
		if rerr := r.Report(rctx, out); rerr != nil {
			s.logger.Warn().Err(rerr).Str("request_id", out.RequestID).Msg("failed to report outcome")
		}
	}
}

func (s *Session) countDateFailures(id TableID, diags []diag.Diagnostic) {
	for _, d := range diags {
		if d.Kind == diag.KindDateParseFailed {
			s.collector.IncrementCounter(metrics.DateParseFailedTotal, "table", string(id))
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
