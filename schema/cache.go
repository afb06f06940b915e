package schema

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/stageview"
)

// Tenant columns in the order the row-scope filter prefers them.
const (
	WebsiteID      = "website_id"
	StoreWebsiteID = "store_website_id"
	StoreID        = "store_id"
)

// TenantColumns lists the scoping columns by priority.
var TenantColumns = []string{WebsiteID, StoreWebsiteID, StoreID}

// ColumnSet is the ordered set of column names of a table.
type ColumnSet []string

// Has reports whether the set contains the column.
func (s ColumnSet) Has(column string) bool {
	return slices.Contains(s, column)
}

// First returns the first candidate present in the set.
func (s ColumnSet) First(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if s.Has(c) {
			return c, true
		}
	}
	return "", false
}

// ColumnCache memoizes the column set of every table for the lifetime of
// the process. Tables are never invalidated; an empty result is returned
// but not stored, so a table created later is still picked up.
type ColumnCache struct {
	mu     sync.RWMutex
	tables map[string]ColumnSet
	group  singleflight.Group
	shared stageview.Cache
	ttl    time.Duration
	ns     string
	log    *slog.Logger
}

// CacheOption configures a ColumnCache.
type CacheOption func(*ColumnCache)

// WithSharedCache adds a second-level cache shared between processes.
// Column lists are stored msgpack encoded under CacheKey{Operation: "columns"}.
func WithSharedCache(c stageview.Cache, ttl time.Duration) CacheOption {
	return func(cc *ColumnCache) {
		cc.shared = c
		cc.ttl = ttl
	}
}

// WithNamespace sets the key namespace used in the shared cache.
func WithNamespace(ns string) CacheOption {
	return func(cc *ColumnCache) {
		cc.ns = ns
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) CacheOption {
	return func(cc *ColumnCache) {
		if l != nil {
			cc.log = l
		}
	}
}

// NewColumnCache returns an empty cache.
func NewColumnCache(opts ...CacheOption) *ColumnCache {
	c := &ColumnCache{
		tables: make(map[string]ColumnSet),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Columns returns the column set of table, describing it through d on a
// miss. Concurrent misses for the same table share one introspection.
// Failures are returned as *stageview.SchemaIntrospectionError and are
// never cached.
func (c *ColumnCache) Columns(ctx context.Context, d Describer, table string) (ColumnSet, error) {
	if cols, ok := c.lookup(table); ok {
		return cols, nil
	}
	v, err, _ := c.group.Do(table, func() (any, error) {
		if cols, ok := c.lookup(table); ok {
			return cols, nil
		}
		if cols, ok := c.loadShared(ctx, table); ok {
			c.store(table, cols)
			return cols, nil
		}
		names, err := d.DescribeColumns(ctx, table)
		if err != nil {
			return nil, stageview.NewSchemaIntrospectionError(table, err)
		}
		cols := ColumnSet(names)
		if len(cols) == 0 {
			c.log.DebugContext(ctx, "table has no columns, not caching", "table", table)
			return cols, nil
		}
		c.store(table, cols)
		c.storeShared(ctx, table, cols)
		return cols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ColumnSet), nil
}

// Warm describes all tables concurrently and fills the cache. The first
// failure is returned.
func (c *ColumnCache) Warm(ctx context.Context, d Describer, tables ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, t := range tables {
		g.Go(func() error {
			_, err := c.Columns(ctx, d, t)
			return err
		})
	}
	return g.Wait()
}

// Len returns the number of cached tables.
func (c *ColumnCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// Tables returns the cached table names, sorted.
func (c *ColumnCache) Tables() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	c.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (c *ColumnCache) lookup(table string) (ColumnSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cols, ok := c.tables[table]
	return cols, ok
}

func (c *ColumnCache) store(table string, cols ColumnSet) {
	c.mu.Lock()
	c.tables[table] = cols
	c.mu.Unlock()
}

func (c *ColumnCache) key(table string) string {
	return stageview.CacheKey{Namespace: c.ns, Table: table, Operation: "columns"}.String()
}

func (c *ColumnCache) loadShared(ctx context.Context, table string) (ColumnSet, bool) {
	if c.shared == nil {
		return nil, false
	}
	b, err := c.shared.Get(ctx, c.key(table))
	if err != nil {
		c.log.WarnContext(ctx, "shared column cache get failed", "table", table, "error", err)
		return nil, false
	}
	if b == nil {
		return nil, false
	}
	var cols []string
	if err := msgpack.Unmarshal(b, &cols); err != nil {
		c.log.WarnContext(ctx, "shared column cache entry is corrupt", "table", table, "error", err)
		return nil, false
	}
	if len(cols) == 0 {
		return nil, false
	}
	return cols, true
}

func (c *ColumnCache) storeShared(ctx context.Context, table string, cols ColumnSet) {
	if c.shared == nil {
		return
	}
	b, err := msgpack.Marshal([]string(cols))
	if err != nil {
		c.log.WarnContext(ctx, "encode column set", "table", table, "error", err)
		return
	}
	if err := c.shared.Set(ctx, c.key(table), b, c.ttl); err != nil {
		c.log.WarnContext(ctx, "shared column cache set failed", "table", table, "error", err)
	}
}
