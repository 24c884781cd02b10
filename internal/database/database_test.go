package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRebind(t *testing.T) {
	query := "SELECT * FROM t WHERE a = ? AND b > ? LIMIT ?"
	assert.Equal(t, query, Rebind(DriverSQLite, query))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b > $2 LIMIT $3", Rebind(DriverPostgres, query))
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = Transaction(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t VALUES (1)")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = Transaction(context.Background(), db, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollbackFailureKeepsCause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	rbErr := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(rbErr)

	err = Transaction(context.Background(), db, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, rbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/tmp/risk.db")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Equal(t, "file:x.db?mode=ro", sqliteDSN("file:x.db?mode=ro"))
}

func TestMigrationManager_LoadMigrations(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres} {
		m := NewMigrationManager(nil, driver, zap.NewNop())
		migrations, err := m.LoadMigrations()
		require.NoError(t, err)
		require.NotEmpty(t, migrations)
		assert.Equal(t, 1, migrations[0].Version)
		assert.Contains(t, migrations[0].SQL, "risk_zone_history")
	}
}

func TestOpen_SQLiteAppliesSchema(t *testing.T) {
	db, err := Open(Config{Driver: DriverSQLite, Path: t.TempDir() + "/risk.db"}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	m := NewMigrationManager(db, DriverSQLite, zap.NewNop())
	require.NoError(t, m.RunMigrations(ctx))
	// second run is a no-op
	require.NoError(t, m.RunMigrations(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)

	_, err = db.Exec("INSERT INTO risk_zone_history (id, cell_id, new_score, new_level, change_type, actor, created_at) VALUES ('h1', '8928308280fffff', 10, 'low', 'recalculation', 'system', CURRENT_TIMESTAMP)")
	assert.NoError(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}
