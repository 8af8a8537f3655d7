package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/normalize"
	"github.com/ruslano69/ezsearch/pkg/table"
)

// KeyKind - вариант запроса, выбранный по форме ключа
type KeyKind int

const (
	KeyText KeyKind = iota
	KeyNumeric
)

// String - строковое представление
func (k KeyKind) String() string {
	if k == KeyNumeric {
		return "numeric"
	}
	return "text"
}

// Classify - числовой ключ: непустой и состоит только из десятичных цифр
func Classify(key string) KeyKind {
	if key == "" {
		return KeyText
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return KeyText
		}
	}
	return KeyNumeric
}

// Result - объединенный результат первичного поиска
type Result struct {
	Key         string
	Kind        KeyKind
	Columns     []string
	Rows        []table.Row
	Diagnostics []diag.Diagnostic

	// Failed - число недоступных источников, Total - всего источников
	Failed int
	Total  int

	// Empty - ни один источник не вернул строк, Rows содержит одну строку-заглушку
	Empty bool
}

// Summary - "N of M sources unavailable" или пустая строка
func (r *Result) Summary() string {
	if r.Failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d sources unavailable", r.Failed, r.Total)
}

// Search выполняет первичный поиск по всем источникам каталога.
// Ошибка возвращается только при отмене ctx: сбои источников попадают в Diagnostics.
func (d *Dispatcher) Search(ctx context.Context, search catalog.Search, key string) (*Result, error) {
	kind := Classify(key)
	env := catalog.Env{Key: key, Now: time.Now()}

	result := &Result{
		Key:     key,
		Kind:    kind,
		Columns: search.Columns,
		Total:   len(search.Sources),
	}

	targets := make([]Target, len(search.Sources))
	prepared := make([]error, len(search.Sources))
	for i, src := range search.Sources {
		q := src.Text
		if kind == KeyNumeric {
			q = src.Numeric
		}
		targets[i] = Target{Source: src.Name, Database: src.Database}

		sql, err := q.Render()
		if err == nil {
			targets[i].Args, err = q.Bind(env)
		}
		if err != nil {
			prepared[i] = diag.Wrap(diag.KindQueryFailed, src.Name, "failed to prepare query", err)
			continue
		}
		targets[i].Query = sql
	}

	runnable := make([]Target, 0, len(targets))
	slots := make([]int, 0, len(targets))
	for i, t := range targets {
		if prepared[i] == nil {
			runnable = append(runnable, t)
			slots = append(slots, i)
		}
	}

	outcomes := make([]Outcome, len(targets))
	for i, o := range d.Fan(ctx, runnable) {
		outcomes[slots[i]] = o
	}
	for i, err := range prepared {
		if err != nil {
			outcomes[i] = Outcome{Target: targets[i], Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, src := range search.Sources {
		out := outcomes[i]
		if out.Failed() {
			result.Failed++
			result.Diagnostics = append(result.Diagnostics, diag.FromError(src.Name, out.Err))
			continue
		}
		schema := normalize.Schema{
			Canonical: search.Columns,
			Declared:  src.Columns,
			Bool:      src.Bool,
			TagColumn: search.TagColumn,
		}
		result.Rows = append(result.Rows, schema.Rows(out.Rows, src.Name)...)
	}

	if len(result.Rows) == 0 {
		result.Empty = true
		result.Rows = []table.Row{table.Placeholder(search.Columns[0], search.Empty)}
	}

	d.logger.Info().
		Str("key", key).
		Str("variant", kind.String()).
		Int("rows", len(result.Rows)).
		Int("failed", result.Failed).
		Int("sources", result.Total).
		Msg("search completed")

	return result, nil
}
