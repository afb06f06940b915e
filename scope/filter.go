package scope

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview"
	"github.com/syssam/stageview/schema"
)

// IDSource selects which ids of the access scope a column is matched against.
type IDSource int

// ID sources.
const (
	Stores IDSource = iota
	Websites
)

// Column is a tenant column candidate.
type Column struct {
	Name   string
	Source IDSource
}

// DefaultColumns lists the tenant columns by priority. The first column
// present in the main table wins.
var DefaultColumns = []Column{
	{Name: schema.WebsiteID, Source: Websites},
	{Name: schema.StoreWebsiteID, Source: Websites},
	{Name: schema.StoreID, Source: Stores},
}

// Filter injects tenant scoping predicates into collections.
type Filter struct {
	cache   *schema.ColumnCache
	columns []Column
	strict  bool
	allow   map[string]struct{}
	log     *slog.Logger

	applied   atomic.Int64
	delegated atomic.Int64
	unscoped  atomic.Int64
	skipped   atomic.Int64
}

// Option configures a Filter.
type Option func(*Filter)

// WithColumns replaces the tenant column priority list.
func WithColumns(columns ...Column) Option {
	return func(f *Filter) {
		f.columns = columns
	}
}

// WithStrict makes Apply fail with *stageview.UnscopedTableError for tables
// without a tenant column, except for the allowed ones.
func WithStrict(allow ...string) Option {
	return func(f *Filter) {
		f.strict = true
		for _, t := range allow {
			f.allow[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFilter returns a filter reading column sets from cache. A nil cache
// gets a private one.
func NewFilter(cache *schema.ColumnCache, opts ...Option) *Filter {
	if cache == nil {
		cache = schema.NewColumnCache()
	}
	f := &Filter{
		cache:   cache,
		columns: DefaultColumns,
		allow:   make(map[string]struct{}),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply scopes the collection to s. It is a no-op for an unrestricted scope
// and for a collection that was already filtered, so every load and count
// path may call it. Self-scoping collections filter themselves by store.
// Generic tables get a predicate on the first tenant column present:
//
//	main_table.website_id IN (1, 2) OR main_table.website_id IS NULL
//
// A table without a tenant column is read unscoped. Introspection errors
// abort the call and leave the collection unmarked.
func (f *Filter) Apply(ctx context.Context, c Collection, s AccessScope) error {
	if s.IsUnrestricted() {
		return nil
	}
	if done, _ := c.Flag(FilteredFlag).(bool); done {
		f.skipped.Add(1)
		return nil
	}
	switch t := c.ScopeTarget().(type) {
	case SelfScoping:
		if t.Filterer == nil {
			return fmt.Errorf("scope: self-scoping collection has no store filter")
		}
		t.Filterer.AddStoreFilter(s.StoreIDs())
		f.delegated.Add(1)
	case GenericTable:
		if err := f.applyTable(ctx, t, s); err != nil {
			return err
		}
	default:
		return nil
	}
	c.SetFlag(FilteredFlag, true)
	return nil
}

func (f *Filter) applyTable(ctx context.Context, t GenericTable, s AccessScope) error {
	if t.Selector == nil {
		return fmt.Errorf("scope: table %q has no selector", t.MainTable)
	}
	cols, err := f.cache.Columns(ctx, t.Describer, t.MainTable)
	if err != nil {
		return err
	}
	for _, col := range f.columns {
		if !cols.Has(col.Name) {
			continue
		}
		ids := s.StoreIDs()
		if col.Source == Websites {
			ids = s.WebsiteIDs()
		}
		c := t.Selector.C(col.Name)
		restrict(t.Selector, sql.Or(sql.In(c, anys(ids)...), sql.IsNull(c)))
		f.applied.Add(1)
		return nil
	}
	if _, ok := f.allow[t.MainTable]; f.strict && !ok {
		return &stageview.UnscopedTableError{Table: t.MainTable}
	}
	f.unscoped.Add(1)
	f.log.DebugContext(ctx, "no tenant column, reading unscoped", "table", t.MainTable)
	return nil
}

// restrict ANDs p with the current WHERE clause of s. Both sides are
// parenthesized, so a top-level OR in a predicate added earlier cannot
// widen the scope.
func restrict(s *sql.Selector, p *sql.Predicate) {
	if prev := s.P(); prev != nil {
		s.SetP(sql.And(Paren(prev), Paren(p)))
		return
	}
	s.SetP(Paren(p))
}

// Paren returns p wrapped in parentheses. Raw expressions such as
// sql.ExprP("a = ? OR b = ?") keep their precedence when combined with
// other predicates.
func Paren(p *sql.Predicate) *sql.Predicate {
	return sql.P(func(b *sql.Builder) {
		b.Wrap(func(b *sql.Builder) {
			b.Join(p)
		})
	})
}

// Stats holds the filter counters.
type Stats struct {
	// Applied counts predicates injected into generic tables.
	Applied int64
	// Delegated counts calls handed to a self-scoping collection.
	Delegated int64
	// Unscoped counts generic tables read without a tenant column.
	Unscoped int64
	// Skipped counts calls on already filtered collections.
	Skipped int64
}

// Stats returns a snapshot of the filter counters.
func (f *Filter) Stats() Stats {
	return Stats{
		Applied:   f.applied.Load(),
		Delegated: f.delegated.Load(),
		Unscoped:  f.unscoped.Load(),
		Skipped:   f.skipped.Load(),
	}
}

func anys(ids []int) []any {
	v := make([]any, len(ids))
	for i := range ids {
		v[i] = ids[i]
	}
	return v
}
