// Package catalog описывает зарегистрированные запросы: источники поиска,
// планы детальных запросов и подпоиска.
//
// Каталог - данные, а не код: новый тип детального запроса добавляется
// записью в YAML без изменения логики разрешения.
//
// Параметры запросов:
//
//	key        - ключ (поисковый или SelectionKey)
//	like       - "%ключ%" для текстового поиска
//	cutoff     - граница окна давности: now - WindowDays
//	now        - текущее время
//	attr:<Col> - значение колонки промежуточной строки (двухэтапный план)
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

//go:embed default.yaml
var defaultCatalog []byte

// DefaultDatabase - имя подключения по умолчанию
const DefaultDatabase = "main"

// TableSlot - место подстановки имени таблицы из перечисленного набора
const TableSlot = "{table}"

// Параметры запросов
const (
	ParamKey    = "key"
	ParamLike   = "like"
	ParamCutoff = "cutoff"
	ParamNow    = "now"
	ParamAttr   = "attr:"
)

// SourceQuery - неизменяемый параметризованный запрос к одному подключению
type SourceQuery struct {
	SQL    string   `yaml:"sql"`
	Params []string `yaml:"params,omitempty"`

	// Columns - объявленные позиционные колонки результата
	Columns []string `yaml:"columns,omitempty"`

	// Tables - допустимые имена для {table}; Table - выбранное
	Tables []string `yaml:"tables,omitempty"`
	Table  string   `yaml:"table,omitempty"`
}

// Render возвращает текст запроса с подставленным именем таблицы.
// Имя берется только из перечисленного набора Tables.
func (q SourceQuery) Render() (string, error) {
	if !strings.Contains(q.SQL, TableSlot) {
		return q.SQL, nil
	}
	for _, t := range q.Tables {
		if t == q.Table {
			return strings.ReplaceAll(q.SQL, TableSlot, t), nil
		}
	}
	return "", fmt.Errorf("table %q is not in the allowed set %v", q.Table, q.Tables)
}

// Source - один источник первичного поиска: пара (числовой, текстовый) запросов
type Source struct {
	Name     string      `yaml:"name"`
	Database string      `yaml:"database,omitempty"`
	Columns  []string    `yaml:"columns"`
	Bool     []string    `yaml:"bool_columns,omitempty"`
	Numeric  SourceQuery `yaml:"numeric"`
	Text     SourceQuery `yaml:"text"`
}

// Search - первичный поиск
type Search struct {
	Columns   []string `yaml:"columns"`
	KeyColumn string   `yaml:"key_column"`
	TagColumn string   `yaml:"tag_column,omitempty"`
	Dates     []string `yaml:"date_columns,omitempty"`
	Empty     string   `yaml:"empty,omitempty"`
	Sources   []Source `yaml:"sources"`
}

// Stage - запрос этапа двухэтапного плана
type Stage struct {
	Level      string      `yaml:"level"`
	Attribute  string      `yaml:"attribute,omitempty"`
	WindowDays int         `yaml:"window_days,omitempty"`
	Query      SourceQuery `yaml:"query"`
}

// Floor - результат = max(колонка результата, колонка промежуточной строки)
type Floor struct {
	Column string `yaml:"column"`
	From   string `yaml:"from"`
}

// TwoStage - промежуточные строки по ключу, затем один запрос на строку
// по первому непустому атрибуту в порядке приоритета Levels
type TwoStage struct {
	Direct       *Stage      `yaml:"direct,omitempty"`
	Intermediate SourceQuery `yaml:"intermediate"`
	Floor        *Floor      `yaml:"floor,omitempty"`
	Levels       []Stage     `yaml:"levels"`
}

// Plan - план детального запроса или подпоиска
type Plan struct {
	Kind       string   `yaml:"kind"`
	Database   string   `yaml:"database,omitempty"`
	Panels     []string `yaml:"panels,omitempty"`
	Columns    []string `yaml:"columns"`
	Bool       []string `yaml:"bool_columns,omitempty"`
	Dates      []string `yaml:"date_columns,omitempty"`
	TagColumn  string   `yaml:"tag_column,omitempty"`
	WindowDays int      `yaml:"window_days,omitempty"`
	Empty      string   `yaml:"empty,omitempty"`

	// EmptyColumn - колонка строки-заглушки (по умолчанию первая)
	EmptyColumn string `yaml:"empty_column,omitempty"`

	Query    *SourceQuery `yaml:"query,omitempty"`
	TwoStage *TwoStage    `yaml:"two_stage,omitempty"`
}

// Details - панели детальных запросов и их планы
type Details struct {
	Panels []string `yaml:"panels"`
	Plans  []Plan   `yaml:"plans"`
}

// Catalog - полный каталог запросов
type Catalog struct {
	Search    Search  `yaml:"search"`
	Details   Details `yaml:"details"`
	SubSearch []Plan  `yaml:"subsearch"`
}

// Default возвращает встроенный каталог
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load читает каталог из файла; пустой путь - встроенный каталог
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, path, "failed to read catalog", err)
	}
	return Parse(data)
}

// Parse разбирает и проверяет каталог
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, "catalog", "failed to parse catalog", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	if c.Search.Empty == "" {
		c.Search.Empty = "No results found."
	}
	for i := range c.Search.Sources {
		if c.Search.Sources[i].Database == "" {
			c.Search.Sources[i].Database = DefaultDatabase
		}
	}
	for i := range c.Details.Plans {
		p := &c.Details.Plans[i]
		if p.Database == "" {
			p.Database = DefaultDatabase
		}
		if p.Empty == "" {
			p.Empty = "No data available"
		}
		if p.EmptyColumn == "" && len(p.Columns) > 0 {
			p.EmptyColumn = p.Columns[0]
		}
	}
	for i := range c.SubSearch {
		p := &c.SubSearch[i]
		if p.Database == "" {
			p.Database = DefaultDatabase
		}
		if p.Empty == "" {
			p.Empty = "No results found."
		}
		if p.EmptyColumn == "" && len(p.Columns) > 0 {
			p.EmptyColumn = p.Columns[0]
		}
	}
}

// ========== Lookup ==========

// Plan возвращает план детального запроса по типу
func (c *Catalog) Plan(kind string) (*Plan, error) {
	for i := range c.Details.Plans {
		if c.Details.Plans[i].Kind == kind {
			return &c.Details.Plans[i], nil
		}
	}
	return nil, diag.New(diag.KindUnknownKind, kind, fmt.Sprintf("unknown detail kind %q", kind))
}

// SubSearchPlan возвращает план подпоиска по типу
func (c *Catalog) SubSearchPlan(kind string) (*Plan, error) {
	for i := range c.SubSearch {
		if c.SubSearch[i].Kind == kind {
			return &c.SubSearch[i], nil
		}
	}
	return nil, diag.New(diag.KindUnknownKind, kind, fmt.Sprintf("unknown sub-search kind %q", kind))
}

// Kinds возвращает типы детальных запросов панели в порядке каталога
func (c *Catalog) Kinds(panel string) []string {
	var kinds []string
	for _, p := range c.Details.Plans {
		if p.AvailableOn(panel) {
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds
}

// SubSearchKinds возвращает типы подпоиска
func (c *Catalog) SubSearchKinds() []string {
	kinds := make([]string, 0, len(c.SubSearch))
	for _, p := range c.SubSearch {
		kinds = append(kinds, p.Kind)
	}
	return kinds
}

// Databases возвращает имена подключений, используемых каталогом
func (c *Catalog) Databases() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, s := range c.Search.Sources {
		add(s.Database)
	}
	for _, p := range c.Details.Plans {
		add(p.Database)
	}
	for _, p := range c.SubSearch {
		add(p.Database)
	}
	return names
}

// AvailableOn - план доступен на панели (пустой Panels - на всех)
func (p *Plan) AvailableOn(panel string) bool {
	if len(p.Panels) == 0 {
		return true
	}
	for _, name := range p.Panels {
		if name == panel {
			return true
		}
	}
	return false
}
