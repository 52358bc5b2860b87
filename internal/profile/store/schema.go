package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed schema/postgres.sql
	postgresSchema string
	//go:embed schema/mysql.sql
	mysqlSchema string
	//go:embed schema/sqlite.sql
	sqliteSchema string
)

// statements splits a schema file into individual statements so drivers that
// refuse multi-statement Exec can run it. Full-line "--" comments are removed
// before splitting, so they may contain semicolons.
func statements(schema string) []string {
	var body strings.Builder
	for _, line := range strings.Split(schema, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}

	var out []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// EnsureSchema creates any missing tables. It never alters existing ones.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range statements(s.dialect.Schema()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", s.dialect.wrap("exec ddl", err))
		}
	}
	return nil
}
