package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
	"github.com/ruslano69/ezsearch/pkg/brokers"
	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/export"
	"github.com/ruslano69/ezsearch/pkg/resilience"
	"github.com/ruslano69/ezsearch/pkg/resultlog"
	"github.com/ruslano69/ezsearch/pkg/retry"
)

// Config represents the main configuration structure
type Config struct {
	// Name identifies this workstation in audit, Redis keys and broker messages
	Name string `yaml:"name,omitempty"`

	// Database is the default connection used by catalog entries without a database
	Database DatabaseConfig `yaml:"database"`

	// Databases holds additional named connections referenced by the catalog
	Databases map[string]DatabaseConfig `yaml:"databases,omitempty"`

	// Catalog is a path to a query catalog YAML (empty = built-in catalog)
	Catalog string `yaml:"catalog,omitempty"`

	Export     export.Config    `yaml:"export,omitempty"`
	Resilience ResilienceConfig `yaml:"resilience,omitempty"`
	Audit      AuditConfig      `yaml:"audit,omitempty"`
	ResultLog  resultlog.Config `yaml:"resultlog,omitempty"`
	Broker     brokers.Config   `yaml:"broker,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Type         string        `yaml:"type"`                     // mysql, postgres, mssql, sqlite
	Host         string        `yaml:"host,omitempty"`           // For network databases
	Port         int           `yaml:"port,omitempty"`           // Default depends on type (mysql: 3306)
	Database     string        `yaml:"database,omitempty"`       // Database name or file path (sqlite)
	User         string        `yaml:"user,omitempty"`           // Username
	Password     string        `yaml:"password,omitempty"`       // Password
	SSLMode      string        `yaml:"sslmode,omitempty"`        // PostgreSQL SSL mode
	Timeout      time.Duration `yaml:"timeout,omitempty"`        // Per-query timeout
	MaxOpenConns int           `yaml:"max_open_conns,omitempty"` // Pool limit
}

// ResilienceConfig contains circuit breaker, retry and fan-out settings
type ResilienceConfig struct {
	CircuitBreaker resilience.Config `yaml:"circuit_breaker,omitempty"`
	Retry          retry.Config      `yaml:"retry,omitempty"`
	MaxConcurrency int               `yaml:"max_concurrency,omitempty"` // 0 = all sources at once
}

// AuditConfig for audit logging settings
type AuditConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // minimal, standard, full
	File       string          `yaml:"file,omitempty"`
	MaxSize    int             `yaml:"max_size_mb,omitempty"` // Max file size in MB
	MaxBackups int             `yaml:"max_backups,omitempty"`
	JSON       bool            `yaml:"json,omitempty"`    // JSON Lines instead of text
	Console    bool            `yaml:"console,omitempty"` // Log entries through the process logger
	Async      bool            `yaml:"async,omitempty"`
	Database   *DatabaseConfig `yaml:"database,omitempty"` // SQL audit table
	Table      string          `yaml:"table,omitempty"`    // default ezsearch_audit
}

// MetricsConfig for the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"` // default :9090
}

// LogConfig for process logging
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // console, json
}

// LoadConfig loads configuration from YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, filename, "failed to read config file", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, filename, "failed to parse config file", err)
	}
	config.applyDefaults()

	return &config, nil
}

// SaveConfig saves configuration to YAML file
func SaveConfig(filename string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Name = host
		} else {
			c.Name = "ezsearch"
		}
	}
	if c.ResultLog.Name == "" {
		c.ResultLog.Name = c.Name
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that every connection used by the catalog is configured.
// Source reachability is not checked here: unavailable sources are reported per query.
func (c *Config) Validate(cat *catalog.Catalog) error {
	var errs []error

	for _, name := range cat.Databases() {
		db, err := c.Connection(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := db.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("database %q: %w", name, err))
		}
	}

	if c.Audit.Enabled && c.Audit.Database != nil {
		if err := c.Audit.Database.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("audit database: %w", err))
		}
	}
	if c.ResultLog.Enabled && c.ResultLog.Address == "" {
		errs = append(errs, errors.New("resultlog.address is required"))
	}

	if len(errs) > 0 {
		return diag.Wrap(diag.KindConfigInvalid, "config", "invalid configuration", errors.Join(errs...))
	}
	return nil
}

// Connection returns the settings of a named connection
func (c *Config) Connection(name string) (DatabaseConfig, error) {
	if name == catalog.DefaultDatabase {
		return c.Database, nil
	}
	db, ok := c.Databases[name]
	if !ok {
		return DatabaseConfig{}, fmt.Errorf("database %q is referenced by the catalog but not configured", name)
	}
	return db, nil
}

// SourceConfigs builds adapter configs for every connection the catalog uses
func (c *Config) SourceConfigs(cat *catalog.Catalog) (map[string]adapters.Config, error) {
	configs := make(map[string]adapters.Config)
	for _, name := range cat.Databases() {
		db, err := c.Connection(name)
		if err != nil {
			return nil, diag.Wrap(diag.KindConfigInvalid, name, "missing connection", err)
		}
		configs[name] = adapters.Config{
			Type:         db.Type,
			Name:         name,
			DSN:          db.BuildDSN(),
			Timeout:      db.Timeout,
			MaxOpenConns: db.MaxOpenConns,
		}
	}
	return configs, nil
}

// ConnectionNames returns configured connection names in a stable order
func (c *Config) ConnectionNames() []string {
	names := []string{catalog.DefaultDatabase}
	extra := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		if name != catalog.DefaultDatabase {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Validate checks required keys for the connection type
func (d DatabaseConfig) Validate() error {
	switch d.Type {
	case "":
		return errors.New("type is required")
	case "sqlite":
		if d.Database == "" {
			return errors.New("database (file path) is required for sqlite")
		}
		return nil
	case "mysql", "postgres", "mssql":
		var missing []string
		if d.Host == "" {
			missing = append(missing, "host")
		}
		if d.User == "" {
			missing = append(missing, "user")
		}
		if d.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required keys: %v", missing)
		}
		return nil
	default:
		return fmt.Errorf("unsupported database type %q (supported: mysql, postgres, mssql, sqlite)", d.Type)
	}
}

// DefaultPort returns the port used when none is configured
func (d DatabaseConfig) DefaultPort() int {
	if d.Port != 0 {
		return d.Port
	}
	switch d.Type {
	case "postgres":
		return 5432
	case "mssql":
		return 1433
	default:
		return 3306
	}
}

// BuildDSN constructs database connection string from config
func (d DatabaseConfig) BuildDSN() string {
	hostPort := net.JoinHostPort(d.Host, strconv.Itoa(d.DefaultPort()))

	switch d.Type {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = hostPort
		cfg.DBName = d.Database
		cfg.ParseTime = true
		if d.Timeout > 0 {
			cfg.Timeout = d.Timeout
		}
		return cfg.FormatDSN()

	case "postgres":
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     hostPort,
			Path:     "/" + d.Database,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return u.String()

	case "mssql":
		q := url.Values{}
		if d.Database != "" {
			q.Set("database", d.Database)
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.User, d.Password),
			Host:     hostPort,
			RawQuery: q.Encode(),
		}
		return u.String()

	case "sqlite":
		return d.Database

	default:
		return ""
	}
}

// SQLDriver returns the database/sql driver name and placeholder style
func (d DatabaseConfig) SQLDriver() (string, base.BindStyle) {
	switch d.Type {
	case "postgres":
		return "pgx", base.BindDollar
	case "mssql":
		return "sqlserver", base.BindAtP
	case "sqlite":
		return "sqlite", base.BindQuestion
	default:
		return "mysql", base.BindQuestion
	}
}

// CreateSampleConfig creates sample configuration for a database type
func CreateSampleConfig(dbType string) *Config {
	config := &Config{
		Name: "desk1",
		Database: DatabaseConfig{
			Type:    dbType,
			Timeout: 30 * time.Second,
		},
		Export: export.Config{
			Format: export.FormatCSV,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: resilience.Config{
				Enabled:          true,
				MaxFailures:      5,
				Timeout:          60 * time.Second,
				SuccessThreshold: 1,
			},
			Retry:          retry.EnableRetry(3, 200*time.Millisecond),
			MaxConcurrency: 0,
		},
		Audit: AuditConfig{
			Enabled: true,
			Level:   "standard",
			File:    "audit.log",
			MaxSize: 100,
			JSON:    true,
		},
		ResultLog: resultlog.Config{
			Address: "localhost:6379",
			TTL:     3600,
		},
		Broker: brokers.Config{
			Type:    "kafka",
			Brokers: []string{"localhost:9092"},
			Topic:   "ezsearch.outcomes",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}

	switch dbType {
	case "postgres":
		config.Database.Host = "localhost"
		config.Database.Port = 5432
		config.Database.Database = "ezsearch"
		config.Database.User = "postgres"
		config.Database.Password = "password"
		config.Database.SSLMode = "disable"

	case "mssql":
		config.Database.Host = "localhost"
		config.Database.Port = 1433
		config.Database.Database = "ezsearch"
		config.Database.User = "sa"
		config.Database.Password = "YourPassword123"

	case "sqlite":
		config.Database.Database = "ezsearch.db"

	default:
		config.Database.Type = "mysql"
		config.Database.Host = "localhost"
		config.Database.Port = 3306
		config.Database.User = "root"
		config.Database.Password = "password"
	}

	return config
}
