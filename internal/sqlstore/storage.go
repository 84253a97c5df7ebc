package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/guilherme-santos/compasssync/internal"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Storage is the document store of events, sync cursors and users. The same
// type is used inside a transaction, with q bound to the transaction.
type Storage struct {
	db   *sqlx.DB
	q    sqlx.ExtContext
	inTx bool
	// depth counts the savepoints open inside the transaction
	depth int
}

var _ internal.Store = (*Storage)(nil)

// Open connects to the database and runs the migrations. driver is either
// DriverSQLite or DriverPostgres.
func Open(driver, dsn string) (*Storage, error) {
	driver = normalizeDriver(driver)
	if driver == "" {
		return nil, fmt.Errorf("sqlstore: unsupported driver")
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: empty dsn")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}
	s, err := NewStorage(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStorage(db *sql.DB, driver string) (*Storage, error) {
	driver = normalizeDriver(driver)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlstore: connecting: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite has a single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			return nil, err
		}
	}
	xdb := sqlx.NewDb(db, driver)
	s := &Storage{db: xdb, q: xdb}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return s, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", DriverSQLite:
		return DriverSQLite
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres
	}
	return ""
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("sqlstore: executing %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil || s.inTx {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside a transaction. Nested calls run inside a savepoint of
// the outer transaction, so a failing fn only discards its own writes.
func (s *Storage) InTx(ctx context.Context, fn func(internal.Store) error) error {
	if s.inTx {
		return s.savepoint(ctx, fn)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return internal.StoreErr("begin", err)
	}
	defer tx.Rollback()

	if err := fn(&Storage{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return internal.StoreErr("commit", tx.Commit())
}

func (s *Storage) savepoint(ctx context.Context, fn func(internal.Store) error) error {
	name := fmt.Sprintf("sp_%d", s.depth+1)
	if _, err := s.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return internal.StoreErr("savepoint", err)
	}
	if err := fn(&Storage{db: s.db, q: s.q, inTx: true, depth: s.depth + 1}); err != nil {
		if _, rerr := s.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rerr != nil {
			return errors.Join(err, internal.StoreErr("rollback to savepoint", rerr))
		}
		if _, rerr := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); rerr != nil {
			return errors.Join(err, internal.StoreErr("release savepoint", rerr))
		}
		return err
	}
	_, err := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return internal.StoreErr("release savepoint", err)
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func (s *Storage) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s *Storage) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

// execN executes query and returns the number of affected rows.
func (s *Storage) execN(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, internal.StoreErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, internal.StoreErr(op, err)
	}
	return n, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return internal.E(internal.ErrNotFound, op, "", nil)
	}
	return internal.StoreErr(op, err)
}
