package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
	"github.com/mbirkedal/vendorledger/internal/domain/vendor"
)

const vendorColumns = `id, name, nicknames, domain, description,
	invoicing_country, default_currency, default_product_type,
	created_at, updated_at`

// CreateVendor inserts a vendor and sets its ID and timestamps. The unique
// constraint on the name column (case-insensitive) is surfaced as
// vendor.ErrExists so callers can retry-by-read.
func (s *Storage) CreateVendor(ctx context.Context, v *model.Vendor) error {
	now := time.Now().UTC()

	query := `
	INSERT INTO vendors
	(name, nicknames, domain, description, invoicing_country,
	 default_currency, default_product_type, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		v.Name,
		model.JoinNicknames(v.Nicknames),
		v.Domain,
		v.Description,
		v.InvoicingCountry,
		v.DefaultCurrency,
		v.DefaultProductType,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return vendor.ErrExists
		}
		return fmt.Errorf("inserting vendor %q: %w", v.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading vendor insert id: %w", err)
	}
	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now

	return nil
}

// GetVendor retrieves a vendor by ID.
func (s *Storage) GetVendor(ctx context.Context, id int64) (*model.Vendor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id)
	return scanVendor(row)
}

// GetVendorByName retrieves a vendor by canonical name. The name column is
// declared COLLATE NOCASE, so equality here is case-insensitive.
func (s *Storage) GetVendorByName(ctx context.Context, name string) (*model.Vendor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE name = ?`, name)
	return scanVendor(row)
}

// ListVendors returns all vendors ordered by name.
func (s *Storage) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("listing vendors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var vendors []model.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *v)
	}

	return vendors, rows.Err()
}

// UpdateVendor rewrites a vendor's mutable fields. A rename that collides
// with another vendor's name returns vendor.ErrExists.
func (s *Storage) UpdateVendor(ctx context.Context, v *model.Vendor) error {
	now := time.Now().UTC()

	query := `
	UPDATE vendors
	SET name = ?, nicknames = ?, domain = ?, description = ?,
	    invoicing_country = ?, default_currency = ?, default_product_type = ?,
	    updated_at = ?
	WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		v.Name,
		model.JoinNicknames(v.Nicknames),
		v.Domain,
		v.Description,
		v.InvoicingCountry,
		v.DefaultCurrency,
		v.DefaultProductType,
		now,
		v.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return vendor.ErrExists
		}
		return fmt.Errorf("updating vendor %d: %w", v.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading vendor update result: %w", err)
	}
	if affected == 0 {
		return vendor.ErrNotFound
	}
	v.UpdatedAt = now

	return nil
}

// DeleteVendors removes the given vendors. Foreign keys on their
// transactions are nullified by the schema's ON DELETE SET NULL.
func (s *Storage) DeleteVendors(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM vendors WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting vendors: %w", err)
	}

	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVendor(row scanner) (*model.Vendor, error) {
	var v model.Vendor
	var nicknames string

	err := row.Scan(
		&v.ID,
		&v.Name,
		&nicknames,
		&v.Domain,
		&v.Description,
		&v.InvoicingCountry,
		&v.DefaultCurrency,
		&v.DefaultProductType,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vendor.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning vendor: %w", err)
	}

	v.Nicknames = model.SplitNicknames(nicknames)
	return &v, nil
}
