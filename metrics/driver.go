// Package metrics accounts the database work of the scope filter and the
// preview indexer, and exports it to Prometheus.
package metrics

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"entgo.io/ent/dialect"
)

// TableStats holds the statement counters of one table.
type TableStats struct {
	Queries  atomic.Int64
	Execs    atomic.Int64
	Errors   atomic.Int64
	Slow     atomic.Int64
	Duration atomic.Int64 // nanoseconds
}

// TableSnapshot is a point-in-time copy of a TableStats.
type TableSnapshot struct {
	Table    string
	Queries  int64
	Execs    int64
	Errors   int64
	Slow     int64
	Duration time.Duration
}

// Preview reports whether the table is a temporary preview table.
func (s TableSnapshot) Preview() bool {
	return strings.HasSuffix(s.Table, "_tmp")
}

// Statements returns the number of queries and execs.
func (s TableSnapshot) Statements() int64 {
	return s.Queries + s.Execs
}

// SlowHook is called for statements exceeding the slow threshold.
type SlowHook func(ctx context.Context, table, query string, args []any, d time.Duration)

// Driver wraps a dialect.Driver and accounts every statement to the table
// it reads or writes. Statements without a recognizable table are accounted
// to "-".
type Driver struct {
	dialect.Driver
	slow atomic.Int64
	hook SlowHook

	mu     sync.RWMutex
	tables map[string]*TableStats
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithSlowThreshold sets the slow statement threshold. Default is 100ms.
func WithSlowThreshold(d time.Duration) DriverOption {
	return func(drv *Driver) {
		drv.slow.Store(int64(d))
	}
}

// WithSlowHook sets the callback of slow statements.
func WithSlowHook(h SlowHook) DriverOption {
	return func(drv *Driver) {
		drv.hook = h
	}
}

// WithSlowLog logs slow statements at warn level. A nil logger means
// slog.Default().
func WithSlowLog(l *slog.Logger) DriverOption {
	if l == nil {
		l = slog.Default()
	}
	return WithSlowHook(func(ctx context.Context, table, query string, args []any, d time.Duration) {
		l.WarnContext(ctx, "slow statement", "table", table, "duration", d, "query", query, "args", args)
	})
}

// NewDriver wraps drv.
//
//	drv := metrics.NewDriver(sql.OpenDB(dialect.MySQL, db),
//	    metrics.WithSlowThreshold(200*time.Millisecond),
//	    metrics.WithSlowLog(logger),
//	)
func NewDriver(drv dialect.Driver, opts ...DriverOption) *Driver {
	d := &Driver{
		Driver: drv,
		tables: make(map[string]*TableStats),
	}
	d.slow.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SlowThreshold returns the slow statement threshold.
func (d *Driver) SlowThreshold() time.Duration {
	return time.Duration(d.slow.Load())
}

// SetSlowThreshold updates the slow statement threshold. It is safe to call
// while statements run, for example from a configuration reload.
func (d *Driver) SetSlowThreshold(t time.Duration) {
	d.slow.Store(int64(t))
}

// Query implements the dialect.Driver interface.
func (d *Driver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, start, err, true)
	return err
}

// Exec implements the dialect.Driver interface.
func (d *Driver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, start, err, false)
	return err
}

// Tx implements the dialect.Driver interface. Statements of the
// transaction are accounted like the others.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, drv: d}, nil
}

// Table returns the counters of a table, or nil if no statement touched it.
func (d *Driver) Table(name string) *TableStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tables[name]
}

// Snapshot returns the counters of every table, sorted by table name.
func (d *Driver) Snapshot() []TableSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := make([]TableSnapshot, 0, len(d.tables))
	for name, s := range d.tables {
		snap = append(snap, TableSnapshot{
			Table:    name,
			Queries:  s.Queries.Load(),
			Execs:    s.Execs.Load(),
			Errors:   s.Errors.Load(),
			Slow:     s.Slow.Load(),
			Duration: time.Duration(s.Duration.Load()),
		})
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].Table < snap[j].Table })
	return snap
}

// Reset drops all counters.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = make(map[string]*TableStats)
}

func (d *Driver) stats(table string) *TableStats {
	d.mu.RLock()
	s, ok := d.tables[table]
	d.mu.RUnlock()
	if ok {
		return s
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.tables[table]; !ok {
		s = &TableStats{}
		d.tables[table] = s
	}
	return s
}

func (d *Driver) record(ctx context.Context, query string, args any, start time.Time, err error, isQuery bool) {
	elapsed := time.Since(start)
	table := StatementTable(query)
	s := d.stats(table)
	if isQuery {
		s.Queries.Add(1)
	} else {
		s.Execs.Add(1)
	}
	s.Duration.Add(int64(elapsed))
	if err != nil {
		s.Errors.Add(1)
	}
	if elapsed > d.SlowThreshold() {
		s.Slow.Add(1)
		if d.hook != nil {
			argv, _ := args.([]any)
			d.hook(ctx, table, query, argv, elapsed)
		}
	}
}

// Tx is a transaction of a Driver.
type Tx struct {
	dialect.Tx
	drv *Driver
}

// Query implements the dialect.Tx interface.
func (tx *Tx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.drv.record(ctx, query, args, start, err, true)
	return err
}

// Exec implements the dialect.Tx interface.
func (tx *Tx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.drv.record(ctx, query, args, start, err, false)
	return err
}

var tableRe = regexp.MustCompile("(?i)\\b(?:FROM|INTO|UPDATE|TABLE(?:\\s+IF\\s+NOT\\s+EXISTS)?)\\s+[`\"]?(\\w+)[`\"]?(?:\\.[`\"]?(\\w+)[`\"]?)?")

// StatementTable returns the first table a statement reads or writes, or
// "-". Schema qualifiers are dropped.
func StatementTable(query string) string {
	m := tableRe.FindStringSubmatch(query)
	switch {
	case m == nil:
		return "-"
	case m[2] != "":
		return m[2]
	default:
		return m[1]
	}
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)
