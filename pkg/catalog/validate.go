package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/security"
)

// Validate проверяет согласованность каталога
func (c *Catalog) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// ========== Search ==========

	s := c.Search
	if len(s.Columns) == 0 {
		add("search: columns are required")
	}
	if !contains(s.Columns, s.KeyColumn) {
		add("search: key_column %q is not a search column", s.KeyColumn)
	}
	if s.TagColumn != "" && !contains(s.Columns, s.TagColumn) {
		add("search: tag_column %q is not a search column", s.TagColumn)
	}
	for _, d := range s.Dates {
		if !contains(s.Columns, d) {
			add("search: date column %q is not a search column", d)
		}
	}
	if len(s.Sources) == 0 {
		add("search: at least one source is required")
	}

	names := make(map[string]bool)
	for _, src := range s.Sources {
		if src.Name == "" {
			add("search: source without name")
		}
		if names[src.Name] {
			add("search: duplicate source %q", src.Name)
		}
		names[src.Name] = true

		if len(src.Columns) == 0 {
			add("search source %s: columns are required", src.Name)
		}
		for _, b := range src.Bool {
			if !contains(s.Columns, b) {
				add("search source %s: bool column %q is not a search column", src.Name, b)
			}
		}
		for label, q := range map[string]SourceQuery{"numeric": src.Numeric, "text": src.Text} {
			if err := validateQuery(q, nil); err != nil {
				add("search source %s %s: %v", src.Name, label, err)
			}
		}
	}

	// ========== Details ==========

	kinds := make(map[string]bool)
	for i := range c.Details.Plans {
		p := &c.Details.Plans[i]
		if kinds[p.Kind] {
			add("details: duplicate kind %q", p.Kind)
		}
		kinds[p.Kind] = true

		for _, panel := range p.Panels {
			if !contains(c.Details.Panels, panel) {
				add("details %s: unknown panel %q", p.Kind, panel)
			}
		}
		for _, err := range validatePlan(p) {
			add("details %s: %v", p.Kind, err)
		}
	}

	// ========== Sub-search ==========

	subKinds := make(map[string]bool)
	for i := range c.SubSearch {
		p := &c.SubSearch[i]
		if subKinds[p.Kind] {
			add("subsearch: duplicate kind %q", p.Kind)
		}
		subKinds[p.Kind] = true

		for _, err := range validatePlan(p) {
			add("subsearch %s: %v", p.Kind, err)
		}
	}

	if len(errs) > 0 {
		return diag.Wrap(diag.KindConfigInvalid, "catalog", "invalid catalog", errors.Join(errs...))
	}
	return nil
}

func validatePlan(p *Plan) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if p.Kind == "" {
		add("kind is required")
	}
	if len(p.Columns) == 0 {
		add("columns are required")
	}
	for _, b := range p.Bool {
		if !contains(p.Columns, b) {
			add("bool column %q is not a plan column", b)
		}
	}
	for _, d := range p.Dates {
		if !contains(p.Columns, d) {
			add("date column %q is not a plan column", d)
		}
	}
	if p.EmptyColumn != "" && !contains(p.Columns, p.EmptyColumn) {
		add("empty_column %q is not a plan column", p.EmptyColumn)
	}
	if (p.Query == nil) == (p.TwoStage == nil) {
		add("exactly one of query or two_stage is required")
		return errs
	}

	if p.Query != nil {
		if err := validateQuery(*p.Query, nil); err != nil {
			add("query: %v", err)
		}
		return errs
	}

	ts := p.TwoStage
	if p.TagColumn == "" || !contains(p.Columns, p.TagColumn) {
		add("two_stage plans need a tag_column among the plan columns")
	}
	if ts.Direct != nil {
		if err := validateQuery(ts.Direct.Query, nil); err != nil {
			add("direct: %v", err)
		}
	}
	if err := validateQuery(ts.Intermediate, nil); err != nil {
		add("intermediate: %v", err)
	}
	if len(ts.Intermediate.Columns) == 0 {
		add("intermediate: columns are required")
	}
	if len(ts.Levels) == 0 {
		add("at least one level is required")
	}
	for _, lvl := range ts.Levels {
		if lvl.Level == "" {
			add("level without name")
		}
		if !contains(ts.Intermediate.Columns, lvl.Attribute) {
			add("level %s: attribute %q is not an intermediate column", lvl.Level, lvl.Attribute)
		}
		if err := validateQuery(lvl.Query, ts.Intermediate.Columns); err != nil {
			add("level %s: %v", lvl.Level, err)
		}
		if ts.Floor != nil && !contains(lvl.Query.Columns, ts.Floor.Column) {
			add("level %s: floor column %q is not a query column", lvl.Level, ts.Floor.Column)
		}
	}
	if ts.Floor != nil && !contains(ts.Intermediate.Columns, ts.Floor.From) {
		add("floor: %q is not an intermediate column", ts.Floor.From)
	}

	return errs
}

// validateQuery проверяет SQL (только чтение), число плейсхолдеров и параметры
func validateQuery(q SourceQuery, attrs []string) error {
	if strings.TrimSpace(q.SQL) == "" {
		return fmt.Errorf("sql is required")
	}
	rendered, err := q.Render()
	if err != nil {
		return err
	}
	if err := security.ReadOnly(rendered); err != nil {
		return err
	}
	if n := strings.Count(q.SQL, "?"); n != len(q.Params) {
		return fmt.Errorf("sql has %d placeholders, %d params declared", n, len(q.Params))
	}
	for _, p := range q.Params {
		switch {
		case p == ParamKey, p == ParamLike, p == ParamCutoff, p == ParamNow:
		case strings.HasPrefix(p, ParamAttr):
			col := strings.TrimPrefix(p, ParamAttr)
			if !contains(attrs, col) {
				return fmt.Errorf("param %q refers to unknown intermediate column", p)
			}
		default:
			return fmt.Errorf("unknown param %q", p)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
