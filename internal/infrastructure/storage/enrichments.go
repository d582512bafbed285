package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

// SaveEnrichment appends one enrichment audit record for a vendor.
func (s *Storage) SaveEnrichment(ctx context.Context, e *model.VendorEnrichment) error {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
	INSERT INTO vendor_enrichments (vendor_id, source, payload, confidence, created_at)
	VALUES (?, ?, ?, ?, ?)
	`, e.VendorID, e.Source, e.Payload, e.Confidence, now)
	if err != nil {
		return fmt.Errorf("inserting enrichment for vendor %d: %w", e.VendorID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading enrichment insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now

	return nil
}

// ListEnrichmentsByVendor returns a vendor's enrichment records, oldest
// first.
func (s *Storage) ListEnrichmentsByVendor(ctx context.Context, vendorID int64) ([]model.VendorEnrichment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, vendor_id, source, payload, confidence, created_at
	FROM vendor_enrichments
	WHERE vendor_id = ?
	ORDER BY created_at ASC, id ASC
	`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing enrichments for vendor %d: %w", vendorID, err)
	}
	defer func() { _ = rows.Close() }()

	var enrichments []model.VendorEnrichment
	for rows.Next() {
		var e model.VendorEnrichment
		err := rows.Scan(&e.ID, &e.VendorID, &e.Source, &e.Payload, &e.Confidence, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning enrichment: %w", err)
		}
		enrichments = append(enrichments, e)
	}

	return enrichments, rows.Err()
}
