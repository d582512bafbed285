package storage

import (
	"context"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

// Repository defines the complete storage interface. The pipeline and the
// API server depend on this rather than on *Storage so tests can substitute
// mocks.
type Repository interface {
	VendorRepository
	TransactionRepository
	EnrichmentRepository
	Reset() error
	Close() error
}

// VendorRepository handles vendor records.
type VendorRepository interface {
	// CreateVendor inserts a vendor and sets its ID. Returns
	// vendor.ErrExists when the canonical name is already taken
	// (case-insensitive).
	CreateVendor(ctx context.Context, v *model.Vendor) error

	// GetVendor retrieves a vendor by ID. Returns vendor.ErrNotFound when
	// absent.
	GetVendor(ctx context.Context, id int64) (*model.Vendor, error)

	// GetVendorByName retrieves a vendor by canonical name,
	// case-insensitively. Returns vendor.ErrNotFound when absent.
	GetVendorByName(ctx context.Context, name string) (*model.Vendor, error)

	// ListVendors returns all vendors ordered by name.
	ListVendors(ctx context.Context) ([]model.Vendor, error)

	// UpdateVendor rewrites a vendor's mutable fields and bumps updated_at.
	UpdateVendor(ctx context.Context, v *model.Vendor) error

	// DeleteVendors removes the given vendors. Transactions referencing
	// them keep existing with a nullified vendor reference. Returns the
	// number of vendors deleted.
	DeleteVendors(ctx context.Context, ids []int64) (int64, error)
}

// TransactionRepository handles persisted transactions.
type TransactionRepository interface {
	// SaveTransactions inserts all transactions in one database
	// transaction and sets their IDs. All or nothing.
	SaveTransactions(ctx context.Context, txns []*model.Transaction) error

	// ListTransactionsSince returns transactions dated at or after since,
	// oldest first.
	ListTransactionsSince(ctx context.Context, since time.Time) ([]model.Transaction, error)

	// ListTransactions returns transactions matching the filters, newest
	// first, with the vendor name joined in.
	ListTransactions(ctx context.Context, filters TransactionFilters) (*TransactionListResult, error)

	// DeleteTransactions removes the given transactions and returns the
	// number deleted.
	DeleteTransactions(ctx context.Context, ids []int64) (int64, error)

	// GetStats returns aggregate statistics over all stored data.
	GetStats(ctx context.Context) (*Stats, error)
}

// EnrichmentRepository handles the enrichment audit trail.
type EnrichmentRepository interface {
	// SaveEnrichment appends one enrichment audit record.
	SaveEnrichment(ctx context.Context, e *model.VendorEnrichment) error

	// ListEnrichmentsByVendor returns a vendor's enrichment records,
	// oldest first.
	ListEnrichmentsByVendor(ctx context.Context, vendorID int64) ([]model.VendorEnrichment, error)
}

// TransactionFilters defines filters for listing transactions.
type TransactionFilters struct {
	Category string // filter by category (empty = all)
	VendorID int64  // filter by vendor (0 = all)
	BatchID  string // filter by processing batch (empty = all)
	DaysBack int    // how many days back to look (0 = all time)
	Limit    int    // max results (0 = default 50)
	Offset   int    // pagination offset
}

// TransactionRecord is a stored transaction with its vendor name joined in
// for display.
type TransactionRecord struct {
	model.Transaction
	VendorName string
}

// TransactionListResult contains paginated transaction results.
type TransactionListResult struct {
	Transactions []TransactionRecord `json:"transactions"`
	TotalCount   int                 `json:"total_count"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

// CategoryCount is one row of the per-category breakdown in Stats.
type CategoryCount struct {
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	TotalAmount   float64 `json:"total_amount"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Stats aggregates the stored data for the dashboard. Monetary sums are
// approximate (REAL casts); the exact decimal amounts live on the rows.
type Stats struct {
	TotalTransactions     int             `json:"total_transactions"`
	TotalVendors          int             `json:"total_vendors"`
	CategorizedCount      int             `json:"categorized_count"`
	AvgCategoryConfidence float64         `json:"avg_category_confidence"`
	AvgVendorConfidence   float64         `json:"avg_vendor_confidence"`
	Categories            []CategoryCount `json:"categories"`
	VendorMatchSources    map[string]int  `json:"vendor_match_sources"`
}
