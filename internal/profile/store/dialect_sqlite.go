package store

import (
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout sorts lexicographically in the same order as time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func sqliteDialect() *Dialect {
	return &Dialect{
		Name:         "sqlite",
		DriverName:   "sqlite",
		dobColumn:    "d.dob",
		schema:       sqliteSchema,
		upsertClause: excludedAssignments("user_id"),
		uniqueViolation: func(err error) bool {
			switch code := sqliteErrorCode(err); {
			case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
				return true
			case code&0xff == sqlite3.SQLITE_CONSTRAINT:
				// extended codes disabled on this connection
				return strings.Contains(err.Error(), "UNIQUE constraint failed")
			default:
				return false
			}
		},
		errorCode: func(err error) string {
			if code := sqliteErrorCode(err); code != 0 {
				return strconv.Itoa(code)
			}
			return ""
		},
		bindTime: func(t time.Time) any {
			return t.UTC().Format(sqliteTimeLayout)
		},
		// A single connection serialises writers, which is what gives sqlite
		// transactions the same isolation the row lock gives the others.
		configure: func(db *sql.DB, _ int) {
			db.SetMaxOpenConns(1)
		},
	}
}

func sqliteErrorCode(err error) int {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()
	}
	return 0
}
