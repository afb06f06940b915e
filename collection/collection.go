// Package collection provides a generic read collection over one main table.
// Every load, count and id fetch runs the configured privacy policy and row
// scope filter before its SQL is finalized.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview"
	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/query"
	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
)

// Alias is the alias of the main table in every statement.
const Alias = "main_table"

// AdminStore is the store id of rows assigned to all stores.
const AdminStore = 0

// Policy decides whether a collection may be read and may restrict it.
// It is implemented by privacy.QueryPolicy.
type Policy interface {
	EvalQuery(context.Context, scope.Collection) error
}

// Collection is a pending query against one main table.
type Collection struct {
	drv       dialect.Driver
	table     string
	main      string
	describer schema.Describer
	selector  *sql.Selector
	flags     map[string]any
	link      *storeLink
	policy    Policy
	filter    *scope.Filter
	access    scope.AccessScope
	log       *slog.Logger

	resolver index.Resolver
	dims     []index.Dimension

	preds  []*sql.Predicate
	order  []string
	limit  int
	offset int
}

type storeLink struct {
	table string
	key   string
}

// Option configures a Collection.
type Option func(*Collection)

// WithResolver resolves the physical main table through r and dims.
func WithResolver(r index.Resolver, dims ...index.Dimension) Option {
	return func(c *Collection) {
		c.resolver = r
		c.dims = dims
	}
}

// WithDescriber sets the schema describer. By default one is created for
// the driver's dialect.
func WithDescriber(d schema.Describer) Option {
	return func(c *Collection) {
		c.describer = d
	}
}

// WithStoreLink makes the collection self scoping: it is restricted through
// the store assignment table, joined on key.
//
//	collection.New(drv, "cms_page", collection.WithStoreLink("cms_page_store", "page_id"))
func WithStoreLink(table, key string) Option {
	return func(c *Collection) {
		c.link = &storeLink{table: table, key: key}
	}
}

// WithPolicy evaluates p before every read.
func WithPolicy(p Policy) Option {
	return func(c *Collection) {
		c.policy = p
	}
}

// WithScope applies f with the access scope s before every read.
func WithScope(f *scope.Filter, s scope.AccessScope) Option {
	return func(c *Collection) {
		c.filter = f
		c.access = s
	}
}

// WithColumns sets the selected columns. Default is all columns.
func WithColumns(columns ...string) Option {
	return func(c *Collection) {
		qualified := make([]string, len(columns))
		for i := range columns {
			qualified[i] = sql.Table(Alias).C(columns[i])
		}
		c.selector.Select(qualified...)
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a collection reading table. The physical main table is
// resolved once, here.
func New(drv dialect.Driver, table string, opts ...Option) (*Collection, error) {
	c := &Collection{
		drv:      drv,
		table:    table,
		flags:    make(map[string]any),
		selector: sql.Dialect(drv.Dialect()).Select(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.main = table
	if c.resolver != nil {
		c.main = c.resolver.Resolve(table, c.dims...)
	}
	c.selector.From(sql.Table(c.main).As(Alias))
	if c.link == nil && c.describer == nil {
		d, err := schema.NewDescriber(drv)
		if err != nil {
			return nil, err
		}
		c.describer = d
	}
	return c, nil
}

// Table returns the logical table name.
func (c *Collection) Table() string {
	return c.table
}

// MainTable returns the physical table the collection reads.
func (c *Collection) MainTable() string {
	return c.main
}

// Selector returns the underlying selector. It holds the row scope
// predicates; caller predicates are kept apart until a statement is built.
func (c *Collection) Selector() *sql.Selector {
	return c.selector
}

// Where appends predicates, combined with AND. Each predicate is
// parenthesized when the statement is built, so a raw expression with a
// top-level OR cannot escape the row scope.
func (c *Collection) Where(ps ...*sql.Predicate) *Collection {
	c.preds = append(c.preds, ps...)
	return c
}

// WhereP appends storage-level predicates. Each function runs against a
// selector over the main table and its resulting WHERE clause is appended
// as one parenthesized predicate.
func (c *Collection) WhereP(ps ...func(*sql.Selector)) {
	for _, p := range ps {
		s := sql.Dialect(c.drv.Dialect()).Select().From(sql.Table(c.main).As(Alias))
		p(s)
		if w := s.P(); w != nil {
			c.Where(w)
		}
	}
}

// Order appends ORDER BY columns of the main table.
func (c *Collection) Order(columns ...string) *Collection {
	for _, col := range columns {
		c.order = append(c.order, c.selector.C(col))
	}
	return c
}

// Limit sets the page size.
func (c *Collection) Limit(n int) *Collection {
	c.limit = n
	return c
}

// Offset sets the page offset.
func (c *Collection) Offset(n int) *Collection {
	c.offset = n
	return c
}

// Flag implements the scope.Collection interface.
func (c *Collection) Flag(name string) any {
	return c.flags[name]
}

// SetFlag implements the scope.Collection interface.
func (c *Collection) SetFlag(name string, v any) {
	c.flags[name] = v
}

// ScopeTarget implements the scope.Collection interface.
func (c *Collection) ScopeTarget() scope.Target {
	if c.link != nil {
		return scope.SelfScoping{Filterer: c}
	}
	return scope.GenericTable{MainTable: c.main, Describer: c.describer, Selector: c.selector}
}

// AddStoreFilter restricts the collection to rows assigned to one of the
// stores, or to all stores, through the store link table.
func (c *Collection) AddStoreFilter(storeIDs []int) {
	if c.link == nil {
		return
	}
	link := sql.Table(c.link.table)
	ids := []any{AdminStore}
	for _, id := range storeIDs {
		if id != AdminStore {
			ids = append(ids, id)
		}
	}
	assigned := sql.Select(link.C(c.link.key)).
		From(link).
		Where(sql.In(link.C(schema.StoreID), ids...))
	c.selector.Where(sql.In(c.selector.C(c.link.key), assigned))
}

// Load returns all rows of the collection.
func (c *Collection) Load(ctx context.Context) ([]map[string]any, error) {
	if err := c.prepare(ctx); err != nil {
		return nil, err
	}
	records, err := query.Maps(ctx, c.drv, c.page())
	if err != nil {
		return nil, c.queryError("load", err)
	}
	return records, nil
}

// Count returns the number of rows of the collection, ignoring pagination.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.prepare(ctx); err != nil {
		return 0, err
	}
	n, err := query.Int(ctx, c.drv, c.statement().Count())
	if err != nil {
		return 0, c.queryError("count", err)
	}
	return n, nil
}

// IDs returns the values of an integer column of the collection.
func (c *Collection) IDs(ctx context.Context, column string) ([]int, error) {
	if err := c.prepare(ctx); err != nil {
		return nil, err
	}
	s := c.page()
	ids, err := query.Ints(ctx, c.drv, s.Select(s.C(column)))
	if err != nil {
		return nil, c.queryError("ids", err)
	}
	return ids, nil
}

// Query returns the statement the collection would run now.
func (c *Collection) Query() (string, []any) {
	return c.page().Query()
}

// statement returns a copy of the selector with the caller predicates
// appended.
func (c *Collection) statement() *sql.Selector {
	s := c.selector.Clone()
	if len(c.preds) == 0 {
		return s
	}
	ps := make([]*sql.Predicate, len(c.preds))
	for i := range c.preds {
		ps[i] = scope.Paren(c.preds[i])
	}
	return s.Where(sql.And(ps...))
}

// page returns the statement with ordering and pagination applied.
func (c *Collection) page() *sql.Selector {
	s := c.statement()
	if len(c.order) > 0 {
		s.OrderBy(c.order...)
	}
	if c.limit > 0 {
		s.Limit(c.limit)
	}
	if c.offset > 0 {
		s.Offset(c.offset)
	}
	return s
}

// String implements fmt.Stringer.
func (c *Collection) String() string {
	return fmt.Sprintf("collection(%s)", c.main)
}

// queryError wraps a failed read. A missing physical table is also
// reported as a *stageview.NotFoundError.
func (c *Collection) queryError(op string, err error) error {
	if query.IsTableNotFound(err) {
		err = errors.Join(stageview.NewNotFoundErrorWithID("table", c.main), err)
	}
	return stageview.NewQueryError(c.main, op, err)
}

func (c *Collection) prepare(ctx context.Context) error {
	if c.policy != nil {
		if err := c.policy.EvalQuery(ctx, c); err != nil {
			return err
		}
	}
	if c.filter != nil {
		if err := c.filter.Apply(ctx, c, c.access); err != nil {
			return err
		}
	}
	c.log.DebugContext(ctx, "collection prepared", "table", c.main, "filtered", c.flags[scope.FilteredFlag])
	return nil
}

var (
	_ scope.Collection    = (*Collection)(nil)
	_ scope.StoreFilterer = (*Collection)(nil)
)
