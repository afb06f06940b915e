package query

import (
	"context"
	"testing"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sql.OpenDB(dialect.MySQL, db)

	mock.ExpectQuery("SELECT `store_id` FROM `cms_block`").
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}).AddRow(1).AddRow(nil).AddRow([]byte("2")))
	ids, err := Ints(context.Background(), drv, sql.Dialect(dialect.MySQL).Select("store_id").From(sql.Table("cms_block")))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)

	mock.ExpectQuery("SELECT `title` FROM `cms_block`").
		WillReturnRows(sqlmock.NewRows([]string{"title"}).AddRow(1.5))
	_, err = Ints(context.Background(), drv, sql.Dialect(dialect.MySQL).Select("title").From(sql.Table("cms_block")))
	require.ErrorContains(t, err, "unexpected float64")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStringsAndInt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := sql.OpenDB(dialect.MySQL, db)

	mock.ExpectQuery("SELECT `code` FROM `store`").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("admin").AddRow("default"))
	codes, err := Strings(context.Background(), drv, sql.Dialect(dialect.MySQL).Select("code").From(sql.Table("store")))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "default"}, codes)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM .store.`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := Int(context.Background(), drv, sql.Dialect(dialect.MySQL).Select().From(sql.Table("store")).Count())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM `cms_block`").
		WillReturnRows(sqlmock.NewRows([]string{"block_id", "title"}).AddRow(1, []byte("footer")).AddRow(2, nil))
	records, err := Maps(context.Background(), sql.OpenDB(dialect.MySQL, db), sql.Dialect(dialect.MySQL).Select().From(sql.Table("cms_block")))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "footer", records[0]["title"])
	assert.Nil(t, records[1]["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}
