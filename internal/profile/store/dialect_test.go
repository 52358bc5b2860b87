package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	my, err := DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "a = ?", my.rebind("a = ?"))
}

func TestConflictUpsert(t *testing.T) {
	pg, _ := DialectFor("pgx")
	assert.Equal(t,
		"INSERT INTO financial_data (user_id, a, b) VALUES (?, ?, ?) ON CONFLICT (user_id) DO UPDATE SET a = excluded.a, b = excluded.b",
		pg.conflictUpsert("financial_data", "user_id", []string{"a", "b"}),
	)

	my, _ := DialectFor("mysql")
	assert.Equal(t,
		"INSERT INTO financial_data (user_id, a) VALUES (?, ?) ON DUPLICATE KEY UPDATE a = VALUES(a)",
		my.conflictUpsert("financial_data", "user_id", []string{"a"}),
	)
}

func TestDialectForUnknown(t *testing.T) {
	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestSchemaStatements(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "sqlite"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		stmts := statements(d.Schema())
		assert.GreaterOrEqual(t, len(stmts), 5, name)
		for _, stmt := range stmts {
			assert.True(t, strings.HasPrefix(stmt, "CREATE"), "%s: %q", name, stmt)
		}
	}
}

func TestStatementsIgnoreSemicolonsInComments(t *testing.T) {
	schema := `-- owned elsewhere; read only here
CREATE TABLE a (id INTEGER);
    -- trailing note; still a comment
CREATE TABLE b (id INTEGER);
`
	assert.Equal(t, []string{
		"CREATE TABLE a (id INTEGER)",
		"CREATE TABLE b (id INTEGER)",
	}, statements(schema))
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	dsn, err := MySQLDSN("root:pw@tcp(localhost:3306)/waterlily")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
}
