package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// postgresDialect serves both lib/pq ("postgres") and pgx ("pgx"); the SQL is
// identical and only the error types differ.
func postgresDialect(name, driverName string) *Dialect {
	return &Dialect{
		Name:            name,
		DriverName:      driverName,
		numbered:        true,
		lockClause:      " FOR UPDATE",
		returning:       true,
		dobColumn:       "to_char(d.dob, 'YYYY-MM-DD')",
		schema:          postgresSchema,
		upsertClause:    excludedAssignments("user_id"),
		uniqueViolation: func(err error) bool { return postgresErrorCode(err) == pgUniqueViolation },
		errorCode:       postgresErrorCode,
		bindTime:        passTime,
		configure: func(db *sql.DB, maxOpenConns int) {
			db.SetMaxOpenConns(maxOpenConns)
			db.SetMaxIdleConns(maxOpenConns / 2)
			db.SetConnMaxLifetime(time.Hour)
			db.SetConnMaxIdleTime(15 * time.Minute)
		},
	}
}

func postgresErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
