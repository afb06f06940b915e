package preview

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview"
	"github.com/syssam/stageview/query"
)

// Default catalog tables.
const (
	CategoryTable        = "catalog_category_entity"
	CategoryProductTable = "catalog_category_product"
)

// Category is the root entity of a preview.
type Category struct {
	ID       int
	ParentID int
	Path     string
	Level    int
}

// EntityRepository loads categories. A missing category is reported with a
// *stageview.NotFoundError.
type EntityRepository interface {
	Get(ctx context.Context, id int) (*Category, error)
}

// CandidateLookup returns the products assigned to a root category.
type CandidateLookup interface {
	ProductIDs(ctx context.Context, rootID int) ([]int, error)
}

// CategoryRepository reads categories from the category entity table.
type CategoryRepository struct {
	drv   dialect.Driver
	table string
}

// NewCategoryRepository returns a repository over CategoryTable.
func NewCategoryRepository(drv dialect.Driver) *CategoryRepository {
	return &CategoryRepository{drv: drv, table: CategoryTable}
}

// Get implements the EntityRepository interface.
func (r *CategoryRepository) Get(ctx context.Context, id int) (*Category, error) {
	t := sql.Table(r.table)
	var rows []struct {
		ID       int            `sql:"entity_id"`
		ParentID int            `sql:"parent_id"`
		Path     sql.NullString `sql:"path"`
		Level    int            `sql:"level"`
	}
	err := query.Slice(ctx, r.drv, sql.Dialect(r.drv.Dialect()).
		Select(t.C("entity_id"), t.C("parent_id"), t.C("path"), t.C("level")).
		From(t).
		Where(sql.EQ(t.C("entity_id"), id)).
		Limit(1), &rows)
	if err != nil {
		return nil, stageview.NewQueryError(r.table, "get", err)
	}
	if len(rows) == 0 {
		return nil, stageview.NewNotFoundErrorWithID("category", id)
	}
	row := rows[0]
	return &Category{ID: row.ID, ParentID: row.ParentID, Path: row.Path.String, Level: row.Level}, nil
}

// SQLCandidates reads product assignments from the category/product
// association table, without store scoping.
type SQLCandidates struct {
	drv   dialect.Driver
	table string
}

// NewSQLCandidates returns a lookup over CategoryProductTable.
func NewSQLCandidates(drv dialect.Driver) *SQLCandidates {
	return &SQLCandidates{drv: drv, table: CategoryProductTable}
}

// ProductIDs implements the CandidateLookup interface.
func (l *SQLCandidates) ProductIDs(ctx context.Context, rootID int) ([]int, error) {
	t := sql.Table(l.table)
	ids, err := query.Ints(ctx, l.drv, sql.Dialect(l.drv.Dialect()).
		Select(t.C("product_id")).
		From(t).
		Where(sql.EQ(t.C("category_id"), rootID)))
	if err != nil {
		return nil, stageview.NewQueryError(l.table, "product ids", err)
	}
	return ids, nil
}

var (
	_ EntityRepository = (*CategoryRepository)(nil)
	_ CandidateLookup  = (*SQLCandidates)(nil)
)
