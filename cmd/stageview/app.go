package main

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syssam/stageview/cache"
	"github.com/syssam/stageview/config"
	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/metrics"
	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
	"github.com/syssam/stageview/tablemap"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfg      *config.Config
	path     string
	log      *slog.Logger
	level    *slog.LevelVar
	out      io.Writer
	db       *stdsql.DB
	drv      dialect.Driver
	stats    *metrics.Driver
	cache    *schema.ColumnCache
	shared   *cache.Badger
	filter   *scope.Filter
	registry *tablemap.Registry
	stop     func(context.Context) error
}

type flags struct {
	config  string
	dialect string
	dsn     string
	atlas   bool
}

// loadConfig reads the configuration file, or the defaults if it does not
// exist, and applies the flags. path is empty when no file was read.
func loadConfig(f *flags) (cfg *config.Config, path string, err error) {
	switch _, err := os.Stat(f.config); {
	case err == nil:
		if cfg, err = config.Load(f.config); err != nil {
			return nil, "", err
		}
		path = f.config
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	default:
		return nil, "", err
	}
	if f.dialect != "" {
		cfg.Database.Dialect = f.dialect
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newApp(cfg *config.Config, path string, out, errOut io.Writer) (*app, error) {
	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	log := cfg.Log.Logger(errOut, level)
	opts := []schema.CacheOption{
		schema.WithNamespace(cfg.Cache.Namespace),
		schema.WithLogger(log),
	}
	a := &app{
		cfg:      cfg,
		path:     path,
		log:      log,
		level:    level,
		out:      out,
		registry: tablemap.New(tablemap.WithLogger(log)),
		stop:     func(context.Context) error { return nil },
	}
	if cfg.Cache.Dir != "" {
		shared, err := cache.OpenBadger(cfg.Cache.Dir, log)
		if err != nil {
			return nil, err
		}
		a.shared = shared
		opts = append(opts, schema.WithSharedCache(shared, cfg.Cache.TTL))
	}
	a.cache = schema.NewColumnCache(opts...)
	a.filter = scope.NewFilter(a.cache, cfg.Scope.FilterOptions(log)...)
	return a, nil
}

// driver opens the database on first use.
func (a *app) driver() (dialect.Driver, error) {
	if a.drv != nil {
		return a.drv, nil
	}
	db, err := stdsql.Open(a.cfg.Database.DriverName(), a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	a.db = db
	a.stats = metrics.NewDriver(
		sql.OpenDB(a.cfg.Database.DialectName(), db),
		metrics.WithSlowThreshold(a.cfg.Database.SlowThreshold),
		metrics.WithSlowLog(a.log),
	)
	a.drv = a.stats
	if a.cfg.Database.Debug {
		a.drv = dialect.DebugWithContext(a.stats, func(ctx context.Context, v ...any) {
			a.log.DebugContext(ctx, fmt.Sprint(v...))
		})
	}
	return a.drv, nil
}

func (a *app) describer(useAtlas bool) (schema.Describer, error) {
	drv, err := a.driver()
	if err != nil {
		return nil, err
	}
	if useAtlas {
		return schema.NewAtlasDescriber(a.cfg.Database.DialectName(), a.db)
	}
	return schema.NewDescriber(drv)
}

func (a *app) resolver() *index.ScopeResolver {
	return index.NewScopeResolver(index.WithMaxLength(a.cfg.Index.MaxNameLength))
}

// reload applies the settings of a changed configuration file that can
// change while running: the log level and the slow statement threshold.
func (a *app) reload(c *config.Config) {
	a.level.Set(c.Log.SlogLevel())
	if a.stats != nil {
		a.stats.SetSlowThreshold(c.Database.SlowThreshold)
	}
	a.log.Info("configuration applied", "level", c.Log.SlogLevel(), "slow_threshold", c.Database.SlowThreshold)
}

// collectors returns the Prometheus collectors of the invocation.
func (a *app) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		metrics.NewCollector("stageview",
			metrics.WithDriver(a.stats),
			metrics.WithFilter(a.filter),
			metrics.WithRegistry(a.registry),
			metrics.WithColumnCache(a.cache),
		),
		collectors.NewDBStatsCollector(a.db, a.cfg.Database.DialectName()),
	}
}

// serveMetrics exposes the metrics on addr.
func (a *app) serveMetrics(addr string) error {
	if addr == "" {
		return nil
	}
	if _, err := a.driver(); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(a.collectors()...)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()
	a.log.Info("metrics server listening", "addr", srv.Addr)
	a.stop = srv.Shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	err := a.stop(ctx)
	if a.stats != nil {
		for _, s := range a.stats.Snapshot() {
			a.log.Debug("sql statistics", "table", s.Table, "queries", s.Queries, "execs", s.Execs, "errors", s.Errors, "duration", s.Duration)
		}
	}
	if a.shared != nil {
		err = errors.Join(err, a.shared.Close())
	}
	if a.db != nil {
		err = errors.Join(err, a.db.Close())
	}
	return err
}
