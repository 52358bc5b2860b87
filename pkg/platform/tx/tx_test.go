package tx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	dErrors "waterlily/pkg/domain-errors"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE items (name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func insert(ctx context.Context, db *sql.DB, name string) error {
	_, err := QuerierFrom(ctx, db).ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, name)
	return err
}

func TestRunInTxCommits(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 0, nil)

	err := runner.RunInTx(context.Background(), func(txCtx context.Context) error {
		_, ok := From(txCtx)
		assert.True(t, ok)
		return insert(txCtx, db, "a")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 0, nil)
	boom := errors.New("boom")

	err := runner.RunInTx(context.Background(), func(txCtx context.Context) error {
		require.NoError(t, insert(txCtx, db, "a"))
		require.NoError(t, insert(txCtx, db, "b"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestRunInTxJoinsOuterTransaction(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 0, nil)

	err := runner.RunInTx(context.Background(), func(outer context.Context) error {
		require.NoError(t, insert(outer, db, "outer"))
		inner := runner.RunInTx(outer, func(innerCtx context.Context) error {
			return insert(innerCtx, db, "inner")
		})
		require.NoError(t, inner)
		return errors.New("abort both")
	})
	require.Error(t, err)
	assert.Equal(t, 0, count(t, db))
}

func TestRunInTxCancelledContext(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := runner.RunInTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestRunInTxKeepsDomainErrors(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 0, nil)

	err := runner.RunInTx(context.Background(), func(context.Context) error {
		return dErrors.New(dErrors.CodeNotFound, "account not found")
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRunInTxBoundsLongerCallerDeadline(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, 50*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		deadline, ok := txCtx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}

func TestRunInTxKeepsSoonerCallerDeadline(t *testing.T) {
	db := openDB(t)
	runner := NewSQLRunner(db, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	want, _ := ctx.Deadline()

	err := runner.RunInTx(ctx, func(txCtx context.Context) error {
		got, ok := txCtx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got)
		return nil
	})
	require.NoError(t, err)
}
