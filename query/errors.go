package query

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

const (
	undefinedTableState = "42P01"
	undefinedTableMySQL = 1146
)

// IsTableNotFound reports whether err was caused by a statement reading a
// table that does not exist. Postgres reports the condition as
// `relation "x" does not exist`, which is only recognized through its
// SQLSTATE. SQLite exposes no code and is matched on its message.
func IsTableNotFound(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == undefinedTableState
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == undefinedTableMySQL
	}
	return strings.Contains(err.Error(), "no such table")
}
