package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ruslano69/ezsearch/pkg/adapters"
	"github.com/ruslano69/ezsearch/pkg/adapters/base"
	"github.com/ruslano69/ezsearch/pkg/audit"
	"github.com/ruslano69/ezsearch/pkg/brokers"
	"github.com/ruslano69/ezsearch/pkg/catalog"
	"github.com/ruslano69/ezsearch/pkg/detail"
	"github.com/ruslano69/ezsearch/pkg/diag"
	"github.com/ruslano69/ezsearch/pkg/export"
	"github.com/ruslano69/ezsearch/pkg/fanout"
	"github.com/ruslano69/ezsearch/pkg/metrics"
	"github.com/ruslano69/ezsearch/pkg/resilience"
	"github.com/ruslano69/ezsearch/pkg/resultlog"
	"github.com/ruslano69/ezsearch/pkg/retry"
	"github.com/ruslano69/ezsearch/pkg/security"
	"github.com/ruslano69/ezsearch/pkg/session"

	// Source adapters register themselves in the adapter factory
	_ "github.com/ruslano69/ezsearch/pkg/adapters/mssql"
	_ "github.com/ruslano69/ezsearch/pkg/adapters/mysql"
	_ "github.com/ruslano69/ezsearch/pkg/adapters/postgres"
	_ "github.com/ruslano69/ezsearch/pkg/adapters/sqlite"
)

// App holds everything a session needs and releases it on Close
type App struct {
	Config   *Config
	Catalog  *catalog.Catalog
	Session  *session.Session
	Breakers *resilience.Group
	Logger   zerolog.Logger

	clients   map[string]*adapters.LazyClient
	collector *metrics.PrometheusCollector
	server    *metrics.Server
	closers   []func() error
}

// NewApp wires sources, fan-out, reporters and export into a session.
// Sources connect on first use; an unreachable source only fails its own queries.
func NewApp(ctx context.Context, cfg *Config, logger zerolog.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(cat); err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Catalog: cat,
		Logger:  logger,
		clients: make(map[string]*adapters.LazyClient),
	}

	sources, err := cfg.SourceConfigs(cat)
	if err != nil {
		return nil, err
	}
	clients := make(map[string]adapters.Client, len(sources))
	for name, sc := range sources {
		lc := adapters.Lazy(sc)
		app.clients[name] = lc
		clients[name] = lc
	}

	var collector metrics.Collector = metrics.NewNoOpCollector()
	if cfg.Metrics.Enabled {
		app.collector = metrics.NewPrometheusCollector()
		collector = app.collector
	}

	fanOpts := []fanout.Option{
		fanout.WithMetrics(collector),
		fanout.WithLogger(logger.With().Str("component", "fanout").Logger()),
		fanout.WithMaxConcurrency(cfg.Resilience.MaxConcurrency),
	}

	if cfg.Resilience.CircuitBreaker.Enabled {
		cbCfg := cfg.Resilience.CircuitBreaker
		cbCfg.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
		group, err := resilience.NewGroup(cbCfg)
		if err != nil {
			return nil, diag.Wrap(diag.KindConfigInvalid, "resilience.circuit_breaker", "invalid circuit breaker config", err)
		}
		app.Breakers = group
		fanOpts = append(fanOpts, fanout.WithBreakers(group))
	}

	if cfg.Resilience.Retry.Enabled {
		retryCfg := cfg.Resilience.Retry
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying source query")
		}
		retryer, err := retry.NewRetryer(retryCfg)
		if err != nil {
			return nil, diag.Wrap(diag.KindConfigInvalid, "resilience.retry", "invalid retry config", err)
		}
		fanOpts = append(fanOpts, fanout.WithRetry(retryer))
	}

	dispatcher := fanout.New(clients, fanOpts...)
	resolver := detail.NewResolver(cat, dispatcher,
		detail.WithLogger(logger.With().Str("component", "detail").Logger()))

	exportOpts := []export.Option{export.WithLogger(logger.With().Str("component", "export").Logger())}
	if cfg.Export.S3.Enabled() {
		uploader, err := export.NewS3Uploader(ctx, cfg.Export.S3)
		if err != nil {
			return nil, err
		}
		exportOpts = append(exportOpts, export.WithUploader(uploader))
	}
	exporter, err := export.New(cfg.Export, exportOpts...)
	if err != nil {
		return nil, err
	}

	reporters, err := app.buildReporters(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Session = session.New(cat, dispatcher, resolver,
		session.WithExporter(exporter),
		session.WithReporters(reporters...),
		session.WithMetrics(collector),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
	)

	if app.collector != nil {
		app.server = metrics.NewServer(cfg.Metrics.Address, app.collector)
		go func() {
			if err := app.server.Start(); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("address", cfg.Metrics.Address).Msg("metrics endpoint started")
	}

	return app, nil
}

// buildReporters creates audit, Redis and broker reporters from config.
// Redis and broker are optional sinks: an unreachable one is logged and skipped.
func (a *App) buildReporters(ctx context.Context) ([]diag.Reporter, error) {
	cfg := a.Config
	var reporters []diag.Reporter

	if cfg.Audit.Enabled {
		logger, err := a.buildAudit(ctx)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, logger)
	}

	if cfg.ResultLog.Enabled {
		publisher := resultlog.NewRedisPublisher(cfg.ResultLog)
		a.closers = append(a.closers, publisher.Close)
		reporters = append(reporters, publisher)
	}

	if cfg.Broker.Enabled {
		broker, err := brokers.New(cfg.Broker)
		if err != nil {
			return nil, diag.Wrap(diag.KindConfigInvalid, "broker", "invalid broker config", err)
		}
		if err := broker.Connect(ctx); err != nil {
			a.Logger.Warn().Err(err).Str("broker", broker.GetBrokerType()).Msg("broker unavailable, notifications disabled")
		} else {
			notifier := brokers.NewNotifier(broker, cfg.Name)
			a.closers = append(a.closers, notifier.Close)
			reporters = append(reporters, notifier)
		}
	}

	return reporters, nil
}

func (a *App) buildAudit(ctx context.Context) (_ *audit.AuditLogger, err error) {
	cfg := a.Config.Audit

	level, err := audit.ParseLevel(cfg.Level)
	if err != nil {
		return nil, diag.Wrap(diag.KindConfigInvalid, "audit.level", "invalid audit level", err)
	}

	var appenders []audit.Appender
	defer func() {
		if err != nil {
			_ = audit.NewMultiAppender(appenders...).Close()
		}
	}()

	if cfg.File != "" {
		fa, err := newFileAppender(audit.FileAppenderConfig{
			FilePath:   cfg.File,
			MaxSize:    int64(cfg.MaxSize),
			MaxBackups: cfg.MaxBackups,
			Level:      level,
			FormatJSON: cfg.JSON,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create audit file appender: %w", err)
		}
		appenders = append(appenders, fa)
	}

	if cfg.Console {
		appenders = append(appenders, audit.NewConsoleAppender(a.Logger, level))
	}

	var closeDB func() error
	if cfg.Database != nil {
		driver, style := cfg.Database.SQLDriver()
		db, err := sql.Open(driver, cfg.Database.BuildDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		da, err := audit.NewDatabaseAppender(ctx, audit.DatabaseAppenderConfig{
			DB:              db,
			TableName:       cfg.Table,
			Level:           level,
			AutoCreateTable: true,
			Rebind:          func(q string) string { return base.Rebind(style, q) },
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create audit database appender: %w", err)
		}
		appenders = append(appenders, da)
		closeDB = db.Close
	}

	loggerCfg := audit.SyncConfig()
	if cfg.Async {
		loggerCfg = audit.DefaultConfig()
	}
	loggerCfg.DefaultUser = security.CurrentUser()
	loggerCfg.OnError = func(err error) {
		a.Logger.Error().Err(err).Msg("audit write failed")
	}

	logger := audit.NewLogger(loggerCfg, appenders...)
	// audit logger closes its appenders; it must close before the audit database
	a.closers = append([]func() error{logger.Close}, a.closers...)
	if closeDB != nil {
		a.closers = append(a.closers, closeDB)
	}
	return logger, nil
}

// newFileAppender opens the audit file; replaced in tests
var newFileAppender = func(cfg audit.FileAppenderConfig) (audit.Appender, error) {
	return audit.NewFileAppender(cfg)
}

// Sources returns the lazy source clients by connection name
func (a *App) Sources() map[string]*adapters.LazyClient {
	return a.clients
}

// Close cancels in-flight queries and releases sources and sinks
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
	}

	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for name, lc := range a.clients {
		if err := lc.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close source %s: %w", name, err))
		}
	}
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
