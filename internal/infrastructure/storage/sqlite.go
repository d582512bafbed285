// Package storage provides SQLite persistence for transactions, vendors and
// enrichment audit records.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/mbirkedal/vendorledger/internal/domain/duplicate"
	"github.com/mbirkedal/vendorledger/internal/domain/vendor"
)

// Storage provides SQLite database access. It implements the Repository
// interface as well as the narrower Store interfaces the matcher and the
// duplicate detector define.
type Storage struct {
	db *sql.DB
}

// Compile-time checks against the interfaces this type serves.
var (
	_ Repository      = (*Storage)(nil)
	_ vendor.Store    = (*Storage)(nil)
	_ duplicate.Store = (*Storage)(nil)
)

// NewStorage opens (or creates) the SQLite database at dbPath and brings the
// schema up to date. Use ":memory:" for an ephemeral database in tests.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection; cap the pool at one so
	// every query sees the same schema.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Foreign keys are off by default in SQLite; vendor deletion relies on
	// ON DELETE SET NULL firing.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Reset deletes all transactions, vendors and enrichment records. The schema
// stays in place.
func (s *Storage) Reset() error {
	for _, query := range []string{
		`DELETE FROM transactions`,
		`DELETE FROM vendor_enrichments`,
		`DELETE FROM vendors`,
	} {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("resetting database: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
