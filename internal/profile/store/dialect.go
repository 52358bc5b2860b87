package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name is the db.driver config value.
	Name string
	// DriverName is the database/sql driver registered for Name.
	DriverName string

	numbered   bool
	lockClause string
	returning  bool
	dobColumn  string
	schema     string

	upsertClause    func(columns []string) string
	uniqueViolation func(err error) bool
	errorCode       func(err error) string
	bindTime        func(t time.Time) any
	configure       func(db *sql.DB, maxOpenConns int)
}

// DialectFor returns the dialect registered for a db.driver value.
func DialectFor(name string) (*Dialect, error) {
	switch name {
	case "postgres":
		return postgresDialect("postgres", "postgres"), nil
	case "pgx":
		return postgresDialect("pgx", "pgx"), nil
	case "mysql":
		return mysqlDialect(), nil
	case "sqlite":
		return sqliteDialect(), nil
	default:
		return nil, fmt.Errorf("unknown db driver %q: supported drivers are postgres, pgx, mysql, sqlite", name)
	}
}

// Schema returns the CREATE TABLE IF NOT EXISTS statements for the dialect.
func (d *Dialect) Schema() string {
	return d.schema
}

// rebind rewrites ? placeholders to $n for numbered dialects.
func (d *Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func (d *Dialect) IsUniqueViolation(err error) bool {
	return err != nil && d.uniqueViolation(err)
}

// ErrorCode extracts the driver error code from err, or "".
func (d *Dialect) ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return d.errorCode(err)
}

// conflictUpsert builds "INSERT ... <clause>" where every non-key column is
// overwritten from the incoming row.
func (d *Dialect) conflictUpsert(table string, key string, columns []string) string {
	all := append([]string{key}, columns...)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		table,
		strings.Join(all, ", "),
		placeholders(len(all)),
		d.upsertClause(columns),
	)
}

// placeholders returns n comma-separated ? placeholders.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

func excludedAssignments(key string) func(columns []string) string {
	return func(columns []string) string {
		sets := make([]string, len(columns))
		for i, col := range columns {
			sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
		}
		return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
	}
}

func passTime(t time.Time) any {
	return t.UTC()
}
