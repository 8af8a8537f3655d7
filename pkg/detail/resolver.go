// Package detail разрешает детальные запросы по ключу выбранной строки.
//
// Планы описаны в каталоге как данные. Одноэтапный план - один запрос с окном
// давности. Двухэтапный план сначала читает промежуточные строки по ключу, затем
// для каждой строки выбирает первый непустой атрибут по приоритету уровней и
// выполняет один запрос этого уровня. Одинаковые (уровень, аргументы) выполняются
// один раз. Все запросы этапа идут через fanout.Dispatcher.
package detail

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/fanout"
	"github.com/ruslano69/ezsearch/pkg/normalize"
	"github.com/ruslano69/ezsearch/pkg/table"
)

// Resolution - результат детального запроса или подпоиска
type Resolution struct {
	Kind        string
	Key         string
	Columns     []string
	Dates       []string
	Rows        []table.Row
	Diagnostics []diag.Diagnostic

	// Queries - число выполненных запросов, Failed - из них упавших
	Queries int
	Failed  int

	// Empty - строк нет, Rows содержит одну строку-заглушку
	Empty bool
}

// Resolver - исполнитель планов каталога
type Resolver struct {
	catalog    *catalog.Catalog
	dispatcher *fanout.Dispatcher
	now        func() time.Time
	logger     zerolog.Logger
}

// Option - настройка Resolver
type Option func(*Resolver)

// WithClock задает источник текущего времени для окон давности
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger задает логгер
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver создает Resolver
func NewResolver(cat *catalog.Catalog, dispatcher *fanout.Dispatcher, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:    cat,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Panels возвращает имена панелей детальных запросов
func (r *Resolver) Panels() []string {
	return r.catalog.Details.Panels
}

// Kinds возвращает фиксированный набор типов для панели
func (r *Resolver) Kinds(panel string) []string {
	return r.catalog.Kinds(panel)
}

// SubSearchKinds возвращает типы подпоиска
func (r *Resolver) SubSearchKinds() []string {
	return r.catalog.SubSearchKinds()
}

// Resolve выполняет детальный запрос kind по ключу выбранной строки
func (r *Resolver) Resolve(ctx context.Context, kind, key string) (*Resolution, error) {
	plan, err := r.catalog.Plan(kind)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, plan, key)
}

// SubSearch выполняет подпоиск без ключа
func (r *Resolver) SubSearch(ctx context.Context, kind string) (*Resolution, error) {
	plan, err := r.catalog.SubSearchPlan(kind)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, plan, "")
}

func (r *Resolver) run(ctx context.Context, plan *catalog.Plan, key string) (*Resolution, error) {
	res := &Resolution{Kind: plan.Kind, Key: key, Columns: plan.Columns, Dates: plan.Dates}

	if plan.TwoStage != nil {
		r.twoStage(ctx, plan, key, res)
	} else {
		r.singleStage(ctx, plan, key, res)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(res.Rows) == 0 {
		res.Empty = true
		res.Rows = []table.Row{table.Placeholder(plan.EmptyColumn, plan.Empty)}
	}

	r.logger.Info().
		Str("kind", plan.Kind).
		Str("key", key).
		Int("rows", len(res.Rows)).
		Int("queries", res.Queries).
		Int("failed", res.Failed).
		Msg("detail resolved")

	return res, nil
}

// ========== Single stage ==========

func (r *Resolver) singleStage(ctx context.Context, plan *catalog.Plan, key string, res *Resolution) {
	env := catalog.Env{Key: key, Now: r.now(), WindowDays: plan.WindowDays}

	target, err := prepare(plan.Kind, plan.Database, *plan.Query, env)
	if err != nil {
		res.fail(plan.Kind, err)
		return
	}

	out := r.dispatcher.Fan(ctx, []fanout.Target{target})[0]
	res.Queries++
	if out.Failed() {
		res.fail(plan.Kind, out.Err)
		return
	}

	schema := planSchema(plan, plan.Query.DeclaredColumns(plan.Columns))
	res.Rows = append(res.Rows, schema.Rows(out.Rows, plan.Kind)...)
}

// ========== Two stage ==========

// emission - одна группа строк результата второго этапа
type emission struct {
	target int
	level  *catalog.Stage
	floor  any
}

func (r *Resolver) twoStage(ctx context.Context, plan *catalog.Plan, key string, res *Resolution) {
	ts := plan.TwoStage
	now := r.now()
	env := catalog.Env{Key: key, Now: now, WindowDays: plan.WindowDays}

	// Этап 1: прямой запрос и промежуточные строки параллельно
	var first []fanout.Target
	directSlot := -1
	if ts.Direct != nil {
		denv := env
		denv.WindowDays = ts.Direct.WindowDays
		t, err := prepare(ts.Direct.Level, plan.Database, ts.Direct.Query, denv)
		if err != nil {
			res.fail(ts.Direct.Level, err)
		} else {
			directSlot = len(first)
			first = append(first, t)
		}
	}

	inter, err := prepare(plan.Kind, plan.Database, ts.Intermediate, env)
	if err != nil {
		res.fail(plan.Kind, err)
		return
	}
	interSlot := len(first)
	first = append(first, inter)

	outs := r.dispatcher.Fan(ctx, first)
	res.Queries += len(outs)

	if directSlot >= 0 {
		out := outs[directSlot]
		if out.Failed() {
			res.fail(ts.Direct.Level, out.Err)
		} else {
			schema := planSchema(plan, ts.Direct.Query.DeclaredColumns(plan.Columns))
			res.Rows = append(res.Rows, schema.Rows(out.Rows, ts.Direct.Level)...)
		}
	}

	interOut := outs[interSlot]
	if interOut.Failed() {
		res.fail(plan.Kind, interOut.Err)
		return
	}

	// Этап 2: по одному запросу на уникальную пару (уровень, аргументы)
	interCols := ts.Intermediate.DeclaredColumns(nil)
	var (
		targets   []fanout.Target
		emissions []emission
		byArgs    = make(map[string]int)
		emitted   = make(map[string]bool)
	)

	for _, raw := range interOut.Rows {
		attrs := attributes(interCols, raw)

		level := selectLevel(ts.Levels, attrs)
		if level == nil {
			continue
		}

		lenv := catalog.Env{Key: key, Now: now, WindowDays: level.WindowDays, Attrs: attrs}
		t, err := prepare(level.Level, plan.Database, level.Query, lenv)
		if err != nil {
			res.fail(level.Level, err)
			continue
		}

		argsKey := fmt.Sprintf("%s|%v", level.Level, t.Args)
		idx, ok := byArgs[argsKey]
		if !ok {
			idx = len(targets)
			byArgs[argsKey] = idx
			targets = append(targets, t)
		}

		var floor any
		if ts.Floor != nil {
			floor = attrs[ts.Floor.From]
		}
		emitKey := fmt.Sprintf("%s|%v", argsKey, floor)
		if emitted[emitKey] {
			continue
		}
		emitted[emitKey] = true
		emissions = append(emissions, emission{target: idx, level: level, floor: floor})
	}

	if len(targets) == 0 {
		return
	}

	outs = r.dispatcher.Fan(ctx, targets)
	res.Queries += len(outs)

	for i, out := range outs {
		if out.Failed() {
			res.fail(out.Target.Source, out.Err)
			outs[i].Rows = nil
		}
	}

	for _, em := range emissions {
		declared := em.level.Query.DeclaredColumns(plan.Columns)
		schema := planSchema(plan, declared)

		rows := outs[em.target].Rows
		if ts.Floor != nil {
			rows = applyFloor(rows, schema.Index(ts.Floor.Column), em.floor)
		}
		res.Rows = append(res.Rows, schema.Rows(rows, em.level.Level)...)
	}
}

// selectLevel - первый уровень по приоритету с заданным атрибутом
func selectLevel(levels []catalog.Stage, attrs map[string]any) *catalog.Stage {
	for i := range levels {
		if attributeSet(attrs[levels[i].Attribute]) {
			return &levels[i]
		}
	}
	return nil
}

// attributeSet - атрибут задан: не NULL, не пустая строка и не нулевой идентификатор
func attributeSet(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	case []byte:
		return len(x) > 0
	case string:
		return x != ""
	}
	return normalize.FormatValue(v) != ""
}

func applyFloor(rows []adapters.RawRow, col int, floor any) []adapters.RawRow {
	if col < 0 || floor == nil {
		return rows
	}
	out := make([]adapters.RawRow, len(rows))
	for i, raw := range rows {
		cp := make(adapters.RawRow, len(raw))
		copy(cp, raw)
		if col < len(cp) {
			cp[col] = normalize.Later(cp[col], floor)
		}
		out[i] = cp
	}
	return out
}

// ========== Helpers ==========

func prepare(source, database string, q catalog.SourceQuery, env catalog.Env) (fanout.Target, error) {
	t := fanout.Target{Source: source, Database: database}

	sql, err := q.Render()
	if err != nil {
		return t, diag.Wrap(diag.KindQueryFailed, source, "failed to prepare query", err)
	}
	args, err := q.Bind(env)
	if err != nil {
		return t, diag.Wrap(diag.KindQueryFailed, source, "failed to bind query", err)
	}

	t.Query = sql
	t.Args = args
	return t, nil
}

func planSchema(plan *catalog.Plan, declared []string) normalize.Schema {
	return normalize.Schema{
		Canonical: plan.Columns,
		Declared:  declared,
		Bool:      plan.Bool,
		TagColumn: plan.TagColumn,
	}
}

func attributes(columns []string, raw adapters.RawRow) map[string]any {
	attrs := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(raw) {
			attrs[col] = raw[i]
		}
	}
	return attrs
}

func (res *Resolution) fail(scope string, err error) {
	res.Failed++
	res.Diagnostics = append(res.Diagnostics, diag.FromError(scope, err))
}
