// Package sqlrepo is the database/sql Repository. It runs on SQLite
// (modernc.org/sqlite, pure Go) for local use and on PostgreSQL (lib/pq).
// Queries are written once with '?' placeholders and rebound per dialect.
package sqlrepo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/repository"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the database.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

// Store implements repository.Repository.
type Store struct {
	db     *sql.DB
	driver string
	logger logging.Logger
}

var _ repository.Repository = (*Store)(nil)

// Open connects, applies pending migrations and returns the store.
func Open(ctx context.Context, opts Options, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}

	var dsn string
	switch opts.Driver {
	case DriverSQLite:
		dsn = sqliteDSN(opts.DSN)
	case DriverPostgres:
		dsn = opts.DSN
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.Driver == DriverSQLite {
		// One writer at a time; a second connection would only wait on the
		// file lock.
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(max(1, opts.MaxOpenConns/5))
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, driver: opts.Driver, logger: logger}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database ready", logging.F(logging.FieldDriver, opts.Driver))
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrations, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var driver migratedb.Driver
	switch s.driver {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	default:
		driver, err = postgres.WithInstance(s.db, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create %s migration driver: %w", s.driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	// m.Close would close s.db as well.
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("No new database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	s.logger.Info("Database migrations applied")
	return nil
}

// rebind turns '?' placeholders into '$n' for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// withTx runs fn inside a transaction. fn must only use tx: on SQLite the
// pool has a single connection and tx holds it.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	return err
}

// Helper functions

const (
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout      = "2006-01-02"
)

func timestampArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timestampLayout)
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// timeValue scans TIMESTAMPTZ/DATE columns from PostgreSQL and the TEXT
// columns SQLite stores them in.
type timeValue struct {
	Time time.Time
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		v.Time = time.Time{}
		return nil
	case time.Time:
		v.Time = t.UTC()
		return nil
	case []byte:
		return v.parse(string(t))
	case string:
		return v.parse(t)
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (v *timeValue) parse(s string) error {
	if s == "" {
		v.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}

func now() time.Time {
	return time.Now().UTC()
}
