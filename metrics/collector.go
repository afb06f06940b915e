package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
	"github.com/syssam/stageview/tablemap"
)

// Collector exports the statement counters of a Driver, the outcomes of a
// scope.Filter and the state of the preview registry and column cache.
// Sources left unset are not exported.
type Collector struct {
	drv      *Driver
	filter   *scope.Filter
	registry *tablemap.Registry
	columns  *schema.ColumnCache

	statements *prometheus.Desc
	errors     *prometheus.Desc
	slow       *prometheus.Desc
	duration   *prometheus.Desc
	reads      *prometheus.Desc
	redirects  *prometheus.Desc
	cached     *prometheus.Desc
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithDriver exports per-table statement counters of d.
func WithDriver(d *Driver) CollectorOption {
	return func(c *Collector) {
		c.drv = d
	}
}

// WithFilter exports the scoped and unscoped read counters of f.
func WithFilter(f *scope.Filter) CollectorOption {
	return func(c *Collector) {
		c.filter = f
	}
}

// WithRegistry exports the number of installed preview redirects.
func WithRegistry(r *tablemap.Registry) CollectorOption {
	return func(c *Collector) {
		c.registry = r
	}
}

// WithColumnCache exports the number of cached column sets.
func WithColumnCache(cc *schema.ColumnCache) CollectorOption {
	return func(c *Collector) {
		c.columns = cc
	}
}

// NewCollector returns a collector. The namespace prefixes every metric name.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector("stageview", metrics.WithDriver(drv), metrics.WithFilter(filter)))
func NewCollector(namespace string, opts ...CollectorOption) *Collector {
	c := &Collector{
		statements: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sql", "statements_total"),
			"Number of executed SQL statements by table and kind.",
			[]string{"table", "kind", "preview"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sql", "errors_total"),
			"Number of failed SQL statements by table.",
			[]string{"table"}, nil,
		),
		slow: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sql", "slow_statements_total"),
			"Number of statements exceeding the slow threshold by table.",
			[]string{"table"}, nil,
		),
		duration: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sql", "duration_seconds_total"),
			"Time spent executing SQL statements by table.",
			[]string{"table"}, nil,
		),
		reads: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "scope", "reads_total"),
			"Collection reads seen by the row scope filter by outcome.",
			[]string{"outcome"}, nil,
		),
		redirects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "preview", "redirects"),
			"Number of installed preview table redirects.",
			nil, nil,
		),
		cached: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "schema", "cached_tables"),
			"Number of tables with a cached column set.",
			nil, nil,
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	if c.drv != nil {
		ch <- c.statements
		ch <- c.errors
		ch <- c.slow
		ch <- c.duration
	}
	if c.filter != nil {
		ch <- c.reads
	}
	if c.registry != nil {
		ch <- c.redirects
	}
	if c.columns != nil {
		ch <- c.cached
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.drv != nil {
		for _, s := range c.drv.Snapshot() {
			preview := "false"
			if s.Preview() {
				preview = "true"
			}
			ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(s.Queries), s.Table, "query", preview)
			ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(s.Execs), s.Table, "exec", preview)
			ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors), s.Table)
			ch <- prometheus.MustNewConstMetric(c.slow, prometheus.CounterValue, float64(s.Slow), s.Table)
			ch <- prometheus.MustNewConstMetric(c.duration, prometheus.CounterValue, s.Duration.Seconds(), s.Table)
		}
	}
	if c.filter != nil {
		s := c.filter.Stats()
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.Applied), "scoped")
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.Delegated), "delegated")
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.Unscoped), "unscoped")
		ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(s.Skipped), "skipped")
	}
	if c.registry != nil {
		ch <- prometheus.MustNewConstMetric(c.redirects, prometheus.GaugeValue, float64(c.registry.Len()))
	}
	if c.columns != nil {
		ch <- prometheus.MustNewConstMetric(c.cached, prometheus.GaugeValue, float64(c.columns.Len()))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
