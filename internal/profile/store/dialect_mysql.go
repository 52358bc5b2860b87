package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

func mysqlDialect() *Dialect {
	return &Dialect{
		Name:       "mysql",
		DriverName: "mysql",
		lockClause: " FOR UPDATE",
		dobColumn:  "DATE_FORMAT(d.dob, '%Y-%m-%d')",
		schema:     mysqlSchema,
		upsertClause: func(columns []string) string {
			sets := make([]string, len(columns))
			for i, col := range columns {
				sets[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
			}
			return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
		},
		uniqueViolation: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
		},
		errorCode: func(err error) string {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) {
				return strconv.Itoa(int(myErr.Number))
			}
			return ""
		},
		bindTime: passTime,
		configure: func(db *sql.DB, maxOpenConns int) {
			db.SetMaxOpenConns(maxOpenConns)
			db.SetMaxIdleConns(maxOpenConns / 2)
			db.SetConnMaxLifetime(time.Hour)
		},
	}
}

// MySQLDSN normalises a DSN so DATETIME columns scan as time.Time in UTC.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
