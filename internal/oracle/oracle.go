// Package oracle defines the LLM contract used for transaction
// categorization and vendor identification, with interchangeable backends.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

// ErrEmptyResponse is returned when a backend produced no usable content.
var ErrEmptyResponse = errors.New("oracle returned empty response")

// Categorization is the oracle's category guess for one transaction.
// Confidence is nil when the model did not report one; callers blend it into
// their own scoring rather than trusting it directly.
type Categorization struct {
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// VendorIdentification is the oracle's vendor-name extraction for one
// transaction. VendorName is empty when no vendor could be identified.
type VendorIdentification struct {
	VendorName string   `json:"vendor_name"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// VendorInfo is the oracle's enrichment of a vendor name into a full vendor
// profile.
type VendorInfo struct {
	Name               string   `json:"name"`
	Nicknames          []string `json:"nicknames"`
	Domain             string   `json:"domain"`
	Description        string   `json:"default_description"`
	InvoicingCountry   string   `json:"invoicing_country"`
	DefaultCurrency    string   `json:"default_currency"`
	DefaultProductType string   `json:"default_product_type"`
	Confidence         *float64 `json:"confidence"`
}

// BatchResult is one slot of a batch categorization response. TransactionID
// is the caller-assigned index used to match results back to their inputs.
type BatchResult struct {
	TransactionID    int      `json:"transaction_id"`
	Category         string   `json:"category"`
	Confidence       *float64 `json:"confidence"`
	VendorName       string   `json:"vendor_name"`
	VendorConfidence *float64 `json:"vendor_confidence"`
}

// Oracle is the capability interface every backend implements. All methods
// are safe for concurrent use.
type Oracle interface {
	// Categorize classifies a single transaction.
	Categorize(ctx context.Context, txn model.ParsedTransaction) (*Categorization, error)

	// IdentifyVendor extracts a canonical vendor name from a transaction.
	IdentifyVendor(ctx context.Context, txn model.ParsedTransaction) (*VendorIdentification, error)

	// EnrichVendor expands a vendor name into a full profile.
	EnrichVendor(ctx context.Context, vendorName string) (*VendorInfo, error)

	// BatchCategorize classifies many transactions in one call. The result
	// slice may omit or reorder slots; match by TransactionID.
	BatchCategorize(ctx context.Context, txns []model.ParsedTransaction) ([]BatchResult, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider string // "openai" or "gemini"
	APIKey   string
	Model    string // empty selects the backend default
	CacheTTL int    // prompt cache TTL in seconds, 0 for the default
}

// New creates the backend named by cfg.Provider.
func New(cfg Config) (Oracle, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIOracle(cfg), nil
	case "gemini":
		return NewGeminiOracle(cfg), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
