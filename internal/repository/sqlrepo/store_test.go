package sqlrepo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/repository"
	"fjacquet/stmt-ledger/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: path}, logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SQLite(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Repository {
		return openTestStore(t)
	})
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	logger := logging.NewMockLogger()

	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: path}, logger)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, logger.HasEntry("INFO", "Database migrations applied"))

	logger.Clear()
	s, err = Open(context.Background(), Options{Driver: DriverSQLite, DSN: path}, logger)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, logger.HasEntry("DEBUG", "No new database migrations to apply"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql"}, logging.NewMockLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.query, func(t *testing.T) {
			s := &Store{driver: tt.driver}
			assert.Equal(t, tt.want, s.rebind(tt.query))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", sqliteDSN(""))
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", sqliteDSN("file:x.db?mode=rwc"))
}

func TestTimeValue_Scan(t *testing.T) {
	want := time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		src  any
		want time.Time
	}{
		{"nil", nil, time.Time{}},
		{"time", want.In(time.FixedZone("CET", 3600)), want},
		{"stored text", want.Format(timestampLayout), want},
		{"rfc3339 bytes", []byte(want.Format(time.RFC3339)), want},
		{"date", "2025-03-14", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"empty", "", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v timeValue
			require.NoError(t, v.Scan(tt.src))
			assert.True(t, tt.want.Equal(v.Time), "got %v", v.Time)
		})
	}

	var v timeValue
	assert.Error(t, v.Scan(42))
	assert.Error(t, v.Scan("14.03.2025"))
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t)
	_, err := s.RecordRow(context.Background(), repotest.NewTransaction("alice", "no-such-batch", "h", "-1"))
	assert.Error(t, err)
}
