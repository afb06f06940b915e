package metrics

import (
	"context"
	stdsql "database/sql"
	"strings"
	"testing"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/stageview/collection"
	"github.com/syssam/stageview/schema"
	"github.com/syssam/stageview/scope"
	"github.com/syssam/stageview/tablemap"
)

func TestCollector(t *testing.T) {
	db, err := stdsql.Open("sqlite", "file:metrics_collector?mode=memory")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE cms_block (block_id INTEGER PRIMARY KEY, store_id INTEGER)`,
		`CREATE TABLE directory_country (country_id TEXT PRIMARY KEY)`,
		`INSERT INTO cms_block VALUES (1, 1), (2, 2), (3, NULL)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	drv := NewDriver(sql.OpenDB(dialect.SQLite, db))
	cache := schema.NewColumnCache()
	filter := scope.NewFilter(cache)
	reg := tablemap.New()
	require.NoError(t, reg.Set("catalog_category_product_index_store1", "catalog_category_product_index_store1_tmp"))

	for _, table := range []string{"cms_block", "directory_country"} {
		c, err := collection.New(drv, table, collection.WithScope(filter, scope.RestrictedTo([]int{1}, nil)))
		require.NoError(t, err)
		_, err = c.Count(context.Background())
		require.NoError(t, err)
		_, err = c.Load(context.Background())
		require.NoError(t, err)
	}

	c := NewCollector("stageview", WithDriver(drv), WithFilter(filter), WithRegistry(reg), WithColumnCache(cache))
	pr := prometheus.NewRegistry()
	require.NoError(t, pr.Register(c))

	expected := `
# HELP stageview_scope_reads_total Collection reads seen by the row scope filter by outcome.
# TYPE stageview_scope_reads_total counter
stageview_scope_reads_total{outcome="delegated"} 0
stageview_scope_reads_total{outcome="scoped"} 1
stageview_scope_reads_total{outcome="skipped"} 2
stageview_scope_reads_total{outcome="unscoped"} 1
# HELP stageview_preview_redirects Number of installed preview table redirects.
# TYPE stageview_preview_redirects gauge
stageview_preview_redirects 1
# HELP stageview_schema_cached_tables Number of tables with a cached column set.
# TYPE stageview_schema_cached_tables gauge
stageview_schema_cached_tables 2
`
	require.NoError(t, testutil.GatherAndCompare(pr, strings.NewReader(expected),
		"stageview_scope_reads_total", "stageview_preview_redirects", "stageview_schema_cached_tables"))

	blocks := drv.Table("cms_block")
	require.NotNil(t, blocks)
	assert.Equal(t, int64(2), blocks.Queries.Load())
	assert.Equal(t, int64(2), drv.Table("pragma_table_info").Queries.Load())
	assert.Positive(t, testutil.CollectAndCount(c, "stageview_sql_statements_total"))
}

func TestCollector_Empty(t *testing.T) {
	c := NewCollector("stageview")
	assert.Zero(t, testutil.CollectAndCount(c))
}
