// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so it builds wherever Go builds.
//
// DATABASE/SQL OVERVIEW:
// Key types:
//   - sql.DB      a connection pool (NOT a single connection!)
//   - sql.Row     a single result row
//   - sql.Rows    multiple result rows (must be closed!)
//
// SCHEMA:
// Tables are created by goose from the SQL files embedded in ./migrations.
// goose records applied versions in goose_db_version, so New is safe to call
// against an existing database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/sakif/contacts-api/internal/repository/sqlite/migrations"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB owns the connection pool and hands out the per-table repositories.
type DB struct {
	conn     *sql.DB
	contacts *ContactDB
	users    *UserDB
}

// New opens (or creates) the database at dbPath and applies migrations.
//
// dbPath examples:
//   - "data/contacts.db"  file-based database (persistent)
//   - ":memory:"          in-memory database (tests)
//
// PRAGMAS IN THE DSN:
// database/sql hands out several connections, and a PRAGMA run with Exec only
// configures the one connection that happened to execute it. modernc reads
// `_pragma=` query parameters and applies them to every new connection.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each connection to ":memory:" is its own empty database. Pinning the
	// pool to one connection keeps every query on the migrated schema.
	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db := &DB{conn: conn}
	db.contacts = &ContactDB{conn: conn}
	db.users = &UserDB{conn: conn}
	return db, nil
}

// Contacts returns the contact repository.
func (db *DB) Contacts() *ContactDB { return db.contacts }

// Users returns the user repository.
func (db *DB) Users() *UserDB { return db.users }

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func dsn(dbPath string) string {
	pragmas := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)"}
	if dbPath != MemoryPath {
		// WAL lets readers proceed while a write is in progress.
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(pragmas, "&")
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func migrate(ctx context.Context, conn *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, conn, ".")
}
