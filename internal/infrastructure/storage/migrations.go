package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order.
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_vendor_enrichments_table",
		Up:      migration002AddVendorEnrichmentsTable,
	},
	{
		Version: 3,
		Name:    "add_stats_indexes",
		Up:      migration003AddStatsIndexes,
	},
}

// runMigrations executes all pending migrations.
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table.
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions.
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// migration001InitialSchema creates the vendors and transactions tables.
// Amounts are stored as decimal strings to survive round-trips exactly;
// aggregate queries CAST them to REAL.
func migration001InitialSchema(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vendors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			nicknames TEXT NOT NULL DEFAULT '',
			domain TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			invoicing_country TEXT NOT NULL DEFAULT '',
			default_currency TEXT NOT NULL DEFAULT '',
			default_product_type TEXT NOT NULL DEFAULT 'services',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TIMESTAMP NOT NULL,
			posting_date TIMESTAMP,
			text TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			transaction_type TEXT NOT NULL DEFAULT '',
			card_info TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL DEFAULT '',
			receiver TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			balance TEXT NOT NULL DEFAULT '0',
			raw_line TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'not_categorized',
			category_confidence REAL NOT NULL DEFAULT 0,
			vendor_id INTEGER,
			vendor_confidence REAL NOT NULL DEFAULT 0,
			vendor_match_source TEXT NOT NULL DEFAULT 'none',
			batch_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (vendor_id) REFERENCES vendors(id) ON DELETE SET NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_date
		 ON transactions(date)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_vendor_id
		 ON transactions(vendor_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// migration002AddVendorEnrichmentsTable creates the audit table recording
// every oracle enrichment that led to a vendor row.
func migration002AddVendorEnrichmentsTable(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vendor_enrichments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			vendor_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (vendor_id) REFERENCES vendors(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_vendor_enrichments_vendor_id
		 ON vendor_enrichments(vendor_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// migration003AddStatsIndexes adds indexes backing the stats and listing
// queries on the dashboard.
func migration003AddStatsIndexes(db *sql.Tx) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_transactions_category
		 ON transactions(category)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_batch_id
		 ON transactions(batch_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
