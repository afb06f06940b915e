package schema

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"entgo.io/ent/dialect"
)

// AtlasDescriber describes tables through the atlas schema inspector. The
// current schema of the connection is inspected.
type AtlasDescriber struct {
	drv    migrate.Driver
	schema string
}

// NewAtlasDescriber opens an atlas driver of the given dialect on db.
func NewAtlasDescriber(name string, db *stdsql.DB) (*AtlasDescriber, error) {
	var (
		drv migrate.Driver
		err error
	)
	switch name {
	case dialect.MySQL:
		drv, err = mysql.Open(db)
	case dialect.Postgres:
		drv, err = postgres.Open(db)
	case dialect.SQLite:
		drv, err = sqlite.Open(db)
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: open atlas driver: %w", err)
	}
	d := &AtlasDescriber{drv: drv}
	if name == dialect.SQLite {
		d.schema = "main"
	}
	return d, nil
}

// DescribeColumns implements the Describer interface.
func (d *AtlasDescriber) DescribeColumns(ctx context.Context, table string) ([]string, error) {
	s, err := d.drv.InspectSchema(ctx, d.schema, &schema.InspectOptions{
		Mode:   schema.InspectTables,
		Tables: []string{table},
	})
	if err != nil {
		return nil, err
	}
	t, ok := s.Table(table)
	if !ok {
		return nil, nil
	}
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = c.Name
	}
	return columns, nil
}
