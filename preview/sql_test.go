package preview

import (
	"context"
	stdsql "database/sql"
	"errors"
	"regexp"
	"testing"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/stageview"
	"github.com/syssam/stageview/index"
	"github.com/syssam/stageview/query"
	"github.com/syssam/stageview/tablemap"
)

func TestCategoryRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCategoryRepository(sql.OpenDB(dialect.MySQL, db))
	query := regexp.QuoteMeta("SELECT `catalog_category_entity`.`entity_id`, `catalog_category_entity`.`parent_id`, `catalog_category_entity`.`path`, `catalog_category_entity`.`level` FROM `catalog_category_entity` WHERE `catalog_category_entity`.`entity_id` = ? LIMIT 1")

	mock.ExpectQuery(query).WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "parent_id", "path", "level"}).AddRow(42, 1, "1/42", 1))
	c, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, &Category{ID: 42, ParentID: 1, Path: "1/42", Level: 1}, c)

	mock.ExpectQuery(query).WithArgs(999).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id", "parent_id", "path", "level"}))
	_, err = repo.Get(context.Background(), 999)
	assert.True(t, stageview.IsNotFound(err))
	assert.Equal(t, "stageview: category not found (id=999)", err.Error())

	cause := errors.New("too many connections")
	mock.ExpectQuery(query).WithArgs(1).WillReturnError(cause)
	_, err = repo.Get(context.Background(), 1)
	assert.True(t, stageview.IsQueryError(err))
	assert.ErrorIs(t, err, cause)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCandidates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewSQLCandidates(sql.OpenDB(dialect.Postgres, db))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "catalog_category_product"."product_id" FROM "catalog_category_product" WHERE "catalog_category_product"."category_id" = $1`)).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"product_id"}).AddRow(1).AddRow(2).AddRow(3))
	ids, err := l.ProductIDs(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableBuilder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewTableBuilder(sql.OpenDB(dialect.Postgres, db), index.NewScopeResolver(), WithStores(1))
	assert.Equal(t, "catalog_category_product_index_store1_tmp", b.TemporaryTable(1))
	assert.Equal(t, "catalog_product_index_price_store2_tmp",
		NewTableBuilder(nil, index.NewScopeResolver(), WithTable("catalog_product_index_price")).TemporaryTable(2))

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "catalog_category_product_index_store1_tmp"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "catalog_category_product_index_store1_tmp"`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "catalog_category_product_index_store1_tmp" ("category_id", "product_id", "position", "is_parent", "store_id", "visibility") SELECT "catalog_category_product"."category_id", "catalog_category_product"."product_id", "catalog_category_product"."position", 1 AS is_parent, 1 AS store_id, 4 AS visibility FROM "catalog_category_product" WHERE "catalog_category_product"."product_id" IN ($1, $2)`)).
		WithArgs(5, 6).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, b.Execute(context.Background(), 42, []int{5, 6}, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableBuilder_RequestedStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewTableBuilder(sql.OpenDB(dialect.MySQL, db), index.NewScopeResolver())
	mock.ExpectQuery("SELECT `store`.`store_id` FROM `store`").
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}).AddRow(1))
	for _, tmp := range []string{"catalog_category_product_index_store1_tmp", "catalog_category_product_index_store8_tmp"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `" + tmp + "`")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `" + tmp + "`")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `" + tmp + "`")).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, b.Execute(context.Background(), 2, []int{3}, 8, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableBuilder_Rollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewTableBuilder(sql.OpenDB(dialect.MySQL, db), index.NewScopeResolver())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `store`.`store_id` FROM `store` WHERE `store`.`group_id` IN (SELECT `store_group`.`group_id` FROM `store_group` WHERE `store_group`.`root_category_id` = ?) AND `store`.`store_id` <> ? ORDER BY `store`.`store_id`")).
		WithArgs(2, 0).
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}).AddRow(1))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("duplicate entry"))
	mock.ExpectRollback()

	err = b.Execute(context.Background(), 2, []int{1})
	require.ErrorContains(t, err, "preview: fill catalog_category_product_index_store1_tmp")
	require.ErrorContains(t, err, "duplicate entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func openCatalog(t *testing.T) *stdsql.DB {
	t.Helper()
	db, err := stdsql.Open("sqlite", "file:preview_e2e?mode=memory&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE catalog_category_entity (entity_id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL, path TEXT, level INTEGER NOT NULL)`,
		`CREATE TABLE catalog_category_product (category_id INTEGER NOT NULL, product_id INTEGER NOT NULL, position INTEGER NOT NULL DEFAULT 0, PRIMARY KEY (category_id, product_id))`,
		`CREATE TABLE store_group (group_id INTEGER PRIMARY KEY, root_category_id INTEGER NOT NULL)`,
		`CREATE TABLE store (store_id INTEGER PRIMARY KEY, group_id INTEGER NOT NULL)`,
		`CREATE TABLE catalog_category_product_index_store7 (category_id INTEGER NOT NULL, product_id INTEGER NOT NULL, position INTEGER NOT NULL, is_parent SMALLINT NOT NULL, store_id INTEGER NOT NULL, visibility SMALLINT NOT NULL)`,
		`INSERT INTO catalog_category_entity VALUES (1, 0, '1', 0), (42, 1, '1/42', 1)`,
		`INSERT INTO catalog_category_product VALUES (42, 1, 0), (42, 2, 1), (42, 3, 2), (43, 9, 0)`,
		`INSERT INTO store_group VALUES (0, 0), (2, 42)`,
		`INSERT INTO store VALUES (0, 0), (7, 2)`,
		`INSERT INTO catalog_category_product_index_store7 VALUES (42, 100, 0, 1, 7, 4)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func TestPreviewRedirect(t *testing.T) {
	drv := sql.OpenDB(dialect.SQLite, openCatalog(t))
	reg := tablemap.New()
	resolver := index.NewScopeResolver()
	m := NewMaterializer(NewCategoryRepository(drv), NewSQLCandidates(drv), NewTableBuilder(drv, resolver), resolver, reg)
	reads := index.NewMappedResolver(resolver, reg)

	productIDs := func() []int {
		t.Helper()
		tbl := sql.Table(reads.Resolve(index.MainTable, index.StoreDimension(7)))
		ids, err := query.Ints(context.Background(), drv, sql.Dialect(dialect.SQLite).
			Select(tbl.C("product_id")).From(tbl).OrderBy(tbl.C("product_id")))
		require.NoError(t, err)
		return ids
	}
	assert.Equal(t, []int{100}, productIDs())

	require.NoError(t, m.Reindex(context.Background(), 999, 7))
	assert.Zero(t, reg.Len())

	require.NoError(t, m.Reindex(context.Background(), 42, 7))
	assert.Equal(t, "catalog_category_product_index_store7_tmp", reads.Resolve(index.MainTable, index.StoreDimension(7)))
	assert.Equal(t, []int{1, 2, 3}, productIDs())

	reg.Clear("catalog_category_product_index_store7")
	assert.Equal(t, []int{100}, productIDs())

	err := m.Session(context.Background(), 42, 7, func(context.Context) error {
		assert.Equal(t, []int{1, 2, 3}, productIDs())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{100}, productIDs())
}

func TestPreviewRedirect_StoreOutsideRootGroups(t *testing.T) {
	db := openCatalog(t)
	_, err := db.Exec(`INSERT INTO store VALUES (8, 0)`)
	require.NoError(t, err)
	drv := sql.OpenDB(dialect.SQLite, db)
	reg := tablemap.New()
	resolver := index.NewScopeResolver()
	m := NewMaterializer(NewCategoryRepository(drv), NewSQLCandidates(drv), NewTableBuilder(drv, resolver), resolver, reg)
	reads := index.NewMappedResolver(resolver, reg)

	productIDs := func() []int {
		t.Helper()
		tbl := sql.Table(reads.Resolve(index.MainTable, index.StoreDimension(8)))
		ids, err := query.Ints(context.Background(), drv, sql.Dialect(dialect.SQLite).
			Select(tbl.C("product_id")).From(tbl).Where(sql.EQ(tbl.C("store_id"), 8)).OrderBy(tbl.C("product_id")))
		require.NoError(t, err)
		return ids
	}

	require.NoError(t, m.Reindex(context.Background(), 42, 8))
	assert.Equal(t, "catalog_category_product_index_store8_tmp", reads.Resolve(index.MainTable, index.StoreDimension(8)))
	assert.Equal(t, []int{1, 2, 3}, productIDs())
	reg.Clear("catalog_category_product_index_store8")

	err = m.Session(context.Background(), 42, 8, func(context.Context) error {
		assert.Equal(t, []int{1, 2, 3}, productIDs())
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}
