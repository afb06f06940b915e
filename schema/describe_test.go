package schema

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *stdsql.DB {
	t.Helper()
	db, err := stdsql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&_pragma=foreign_keys(1)", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE cms_block (block_id INTEGER PRIMARY KEY, title TEXT, store_id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE directory_country (country_id TEXT PRIMARY KEY, iso2_code TEXT)`)
	require.NoError(t, err)
	return db
}

func TestDescriber_MySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, err := NewDescriber(sql.OpenDB(dialect.MySQL, db))
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `COLUMN_NAME` FROM `INFORMATION_SCHEMA`.`COLUMNS` WHERE TABLE_SCHEMA = (SELECT DATABASE()) AND `TABLE_NAME` = ? ORDER BY `ORDINAL_POSITION`")).
		WithArgs("cms_page").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("page_id").AddRow("website_id"))

	cols, err := d.DescribeColumns(context.Background(), "cms_page")
	require.NoError(t, err)
	assert.Equal(t, []string{"page_id", "website_id"}, cols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescriber_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, err := NewDescriber(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "column_name" FROM "information_schema"."columns" WHERE table_schema = CURRENT_SCHEMA() AND "table_name" = $1 ORDER BY "ordinal_position"`)).
		WithArgs("cms_page").
		WillReturnError(errors.New("connection reset"))

	_, err = d.DescribeColumns(context.Background(), "cms_page")
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescriber_SQLite(t *testing.T) {
	d, err := NewDescriber(sql.OpenDB(dialect.SQLite, openSQLite(t)))
	require.NoError(t, err)

	cols, err := d.DescribeColumns(context.Background(), "cms_block")
	require.NoError(t, err)
	assert.Equal(t, []string{"block_id", "title", "store_id"}, cols)

	cols, err = d.DescribeColumns(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestDescriber_Unsupported(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewDescriber(sql.OpenDB("oracle", db))
	require.ErrorContains(t, err, `unsupported dialect "oracle"`)
	_, err = NewAtlasDescriber("oracle", db)
	require.ErrorContains(t, err, `unsupported dialect "oracle"`)
}

func TestAtlasDescriber_SQLite(t *testing.T) {
	d, err := NewAtlasDescriber(dialect.SQLite, openSQLite(t))
	require.NoError(t, err)

	cols, err := d.DescribeColumns(context.Background(), "cms_block")
	require.NoError(t, err)
	assert.Equal(t, []string{"block_id", "title", "store_id"}, cols)

	cols, err = d.DescribeColumns(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cols)
}
