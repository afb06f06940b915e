package schema

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/syssam/stageview/query"
)

// Describer is the schema introspection capability of a connection.
type Describer interface {
	// DescribeColumns returns the column names of the table in ordinal
	// order. A table that does not exist yields an empty list.
	DescribeColumns(ctx context.Context, table string) ([]string, error)
}

// The DescriberFunc type is an adapter to allow the use of an ordinary
// function as a Describer.
type DescriberFunc func(context.Context, string) ([]string, error)

// DescribeColumns calls f(ctx, table).
func (f DescriberFunc) DescribeColumns(ctx context.Context, table string) ([]string, error) {
	return f(ctx, table)
}

// driverDescriber reads column names from the catalog of the connected
// database using plain queries.
type driverDescriber struct {
	drv dialect.Driver
}

// NewDescriber returns a Describer that queries information_schema for MySQL
// and Postgres, and pragma_table_info for SQLite.
func NewDescriber(drv dialect.Driver) (Describer, error) {
	switch d := drv.Dialect(); d {
	case dialect.MySQL, dialect.Postgres, dialect.SQLite:
		return &driverDescriber{drv: drv}, nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", d)
	}
}

// DescribeColumns implements the Describer interface.
func (d *driverDescriber) DescribeColumns(ctx context.Context, table string) ([]string, error) {
	return query.Strings(ctx, d.drv, columnsQuery(d.drv.Dialect(), table))
}

func columnsQuery(name, table string) sql.Querier {
	switch name {
	case dialect.Postgres:
		return sql.Dialect(name).
			Select("column_name").
			From(sql.Table("columns").Schema("information_schema")).
			Where(sql.And(sql.ExprP("table_schema = CURRENT_SCHEMA()"), sql.EQ("table_name", table))).
			OrderBy("ordinal_position")
	case dialect.SQLite:
		return sql.Expr("SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	default:
		return sql.Dialect(name).
			Select("COLUMN_NAME").
			From(sql.Table("COLUMNS").Schema("INFORMATION_SCHEMA")).
			Where(sql.And(sql.ExprP("TABLE_SCHEMA = (SELECT DATABASE())"), sql.EQ("TABLE_NAME", table))).
			OrderBy("ORDINAL_POSITION")
	}
}
