// Package sqlstore implements the storage backend on a relational database.
// SQLite and PostgreSQL share one implementation; queries are written with
// "?" placeholders and rebound for PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/storysync/internal/storage"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// Dialect selects the SQL flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// goose хранит dialect и FS глобально
var migrateMu sync.Mutex

func init() {
	storage.Register("sqlite", func(dsn string) (storage.Backend, error) {
		return NewSQLite(context.Background(), storage.PathOf(dsn))
	})
	storage.Register("postgres", func(dsn string) (storage.Backend, error) {
		return NewPostgres(context.Background(), dsn)
	})
}

// Storage represents relational storage implementation
type Storage struct {
	db          *sql.DB
	now         func() time.Time
	dialect     Dialect
	initialized atomic.Bool
}

// NewSQLite opens a SQLite database at dbPath.
// Use ":memory:" for in-memory database (useful for testing)
func NewSQLite(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем соединение с БД
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode может поддерживать несколько читателей, но только одного писателя
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return &Storage{db: db, dialect: DialectSQLite, now: storage.Now}, nil
}

// NewPostgres opens a PostgreSQL database described by dsn.
func NewPostgres(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &Storage{db: db, dialect: DialectPostgres, now: storage.Now}, nil
}

// Initialize runs pending migrations. Safe to call repeatedly.
func (s *Storage) Initialize(ctx context.Context) error {
	if err := s.runMigrations(ctx); err != nil {
		return storage.BackendError("initialize", "", err)
	}
	s.initialized.Store(true)
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.initialized.Store(false)
	return s.db.Close()
}

// Capabilities lists optional interfaces implemented by the relational engine.
func (s *Storage) Capabilities() storage.CapabilitySet {
	return storage.NewCapabilitySet(storage.CapPreferences, storage.CapSyncQueue, storage.CapCredentials)
}

// Dialect returns the SQL dialect of the connection.
func (s *Storage) Dialect() Dialect {
	return s.dialect
}

// SchemaVersion returns the applied migration version.
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect(s.gooseDialect()); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}

// runMigrations выполняет миграции из embedded FS
func (s *Storage) runMigrations(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect(s.gooseDialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	// Устанавливаем источник миграций из embedded FS
	goose.SetBaseFS(embedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.UpContext(ctx, s.db, "migrations/"+string(s.dialect)); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

func (s *Storage) gooseDialect() string {
	if s.dialect == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func (s *Storage) checkInitialized(op string) error {
	if !s.initialized.Load() {
		return storage.NotInitialized(op)
	}
	return nil
}

// rebind converts "?" placeholders to the dialect's form.
func (s *Storage) rebind(query string) string {
	return rebind(s.dialect, query)
}

func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
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

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// withTx runs fn in a transaction; any error rolls it back.
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
