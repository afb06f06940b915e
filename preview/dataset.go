package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/query"
)

// VisibilityBoth marks products visible in catalog and search.
const VisibilityBoth = 4

// DatasetBuilder fills the per-store temporary index tables of a preview.
type DatasetBuilder interface {
	// Execute computes the preview rows of the root category for the given
	// candidate products and writes them to the temporary tables. The
	// stores listed in storeIDs are built in addition to the builder's
	// default stores.
	Execute(ctx context.Context, rootID int, productIDs []int, storeIDs ...int) error
	// TemporaryTable returns the temporary table of the store.
	TemporaryTable(storeID int) string
}

// TableBuilder is a DatasetBuilder that copies the category assignments of
// the candidate products into one temporary table per store. Tables are
// created on first use and cleared on every run.
type TableBuilder struct {
	drv      dialect.Driver
	resolver index.Resolver
	table    string
	stores   []int
	log      *slog.Logger
}

// TableBuilderOption configures a TableBuilder.
type TableBuilderOption func(*TableBuilder)

// WithStores fixes the default stores to build. By default the stores of
// the root category's store groups are used.
func WithStores(ids ...int) TableBuilderOption {
	return func(b *TableBuilder) {
		b.stores = ids
	}
}

// WithTable sets the logical index table. Default is index.MainTable.
func WithTable(name string) TableBuilderOption {
	return func(b *TableBuilder) {
		b.table = name
	}
}

// WithBuilderLogger sets the logger. Default is slog.Default().
func WithBuilderLogger(l *slog.Logger) TableBuilderOption {
	return func(b *TableBuilder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewTableBuilder returns a builder naming its tables after the store
// shards of index.MainTable as resolved by r.
func NewTableBuilder(drv dialect.Driver, r index.Resolver, opts ...TableBuilderOption) *TableBuilder {
	b := &TableBuilder{
		drv:      drv,
		resolver: r,
		table:    index.MainTable,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TemporaryTable implements the DatasetBuilder interface.
func (b *TableBuilder) TemporaryTable(storeID int) string {
	return index.Shorten(b.resolver.Resolve(b.table, index.StoreDimension(storeID))+"_tmp", index.DefaultMaxLength)
}

// Execute implements the DatasetBuilder interface.
func (b *TableBuilder) Execute(ctx context.Context, rootID int, productIDs []int, storeIDs ...int) error {
	stores := slices.Clone(b.stores)
	if len(stores) == 0 {
		var err error
		if stores, err = b.storesOf(ctx, rootID); err != nil {
			return err
		}
	}
	for _, id := range storeIDs {
		if !slices.Contains(stores, id) {
			stores = append(stores, id)
		}
	}
	for _, storeID := range stores {
		if err := b.build(ctx, storeID, productIDs); err != nil {
			return err
		}
	}
	b.log.DebugContext(ctx, "preview dataset built", "root", rootID, "stores", stores, "products", len(productIDs))
	return nil
}

func (b *TableBuilder) storesOf(ctx context.Context, rootID int) ([]int, error) {
	st, grp := sql.Table("store"), sql.Table("store_group")
	groups := sql.Select(grp.C("group_id")).From(grp).Where(sql.EQ(grp.C("root_category_id"), rootID))
	ids, err := query.Ints(ctx, b.drv, sql.Dialect(b.drv.Dialect()).
		Select(st.C("store_id")).
		From(st).
		Where(sql.And(sql.In(st.C("group_id"), groups), sql.NEQ(st.C("store_id"), 0))).
		OrderBy(st.C("store_id")))
	if err != nil {
		return nil, fmt.Errorf("preview: stores of root category %d: %w", rootID, err)
	}
	return ids, nil
}

func (b *TableBuilder) build(ctx context.Context, storeID int, productIDs []int) error {
	tmp := b.TemporaryTable(storeID)
	if err := b.exec(ctx, b.drv, b.createTable(tmp)); err != nil {
		return fmt.Errorf("preview: create %s: %w", tmp, err)
	}
	tx, err := b.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := b.exec(ctx, tx, sql.Dialect(b.drv.Dialect()).Delete(tmp)); err != nil {
		return rollback(tx, fmt.Errorf("preview: clear %s: %w", tmp, err))
	}
	if len(productIDs) > 0 {
		if err := b.exec(ctx, tx, b.insertRows(tmp, storeID, productIDs)); err != nil {
			return rollback(tx, fmt.Errorf("preview: fill %s: %w", tmp, err))
		}
	}
	return tx.Commit()
}

func (b *TableBuilder) createTable(name string) sql.Querier {
	return sql.Dialect(b.drv.Dialect()).
		CreateTable(name).
		IfNotExists().
		Columns(
			sql.Column("category_id").Type("INTEGER").Attr("NOT NULL"),
			sql.Column("product_id").Type("INTEGER").Attr("NOT NULL"),
			sql.Column("position").Type("INTEGER").Attr("NOT NULL DEFAULT 0"),
			sql.Column("is_parent").Type("SMALLINT").Attr("NOT NULL DEFAULT 0"),
			sql.Column("store_id").Type("INTEGER").Attr("NOT NULL"),
			sql.Column("visibility").Type("SMALLINT").Attr("NOT NULL"),
		).
		PrimaryKey("category_id", "product_id", "store_id")
}

func (b *TableBuilder) insertRows(name string, storeID int, productIDs []int) sql.Querier {
	src := sql.Table(CategoryProductTable)
	ids := make([]any, len(productIDs))
	for i, id := range productIDs {
		ids[i] = id
	}
	rows := sql.Select(
		src.C("category_id"),
		src.C("product_id"),
		src.C("position"),
		"1 AS is_parent",
		strconv.Itoa(storeID)+" AS store_id",
		strconv.Itoa(VisibilityBoth)+" AS visibility",
	).From(src).Where(sql.In(src.C("product_id"), ids...))
	w := &sql.Builder{}
	w.SetDialect(b.drv.Dialect())
	return w.WriteString("INSERT INTO ").Ident(name).
		WriteString(" (").IdentComma("category_id", "product_id", "position", "is_parent", "store_id", "visibility").
		WriteString(") ").
		Join(rows)
}

func (b *TableBuilder) exec(ctx context.Context, ex dialect.ExecQuerier, q sql.Querier) error {
	query, args := q.Query()
	if args == nil {
		args = []any{}
	}
	return ex.Exec(ctx, query, args, nil)
}

func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

var _ DatasetBuilder = (*TableBuilder)(nil)
