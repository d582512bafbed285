// Package model defines the domain types shared by the pipeline, the
// matcher, the duplicate detector and the storage layer.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MatchSource records how a transaction's vendor reference was resolved.
type MatchSource string

const (
	MatchSourceCache    MatchSource = "cache"
	MatchSourceDatabase MatchSource = "database"
	MatchSourceLLM      MatchSource = "llm"
	MatchSourceNone     MatchSource = "none"
)

// ParsedTransaction is one bank-statement row after CSV parsing, before
// categorization. Amounts are signed: negative means debit.
type ParsedTransaction struct {
	Date            time.Time
	PostingDate     time.Time
	Text            string
	Message         string
	TransactionType string
	CardInfo        string
	Amount          decimal.Decimal
	Currency        string
	Sender          string
	Receiver        string
	Note            string
	Balance         decimal.Decimal
	RawLine         string
}

// SearchText concatenates all free-text fields, lowercased, for similarity
// and entropy scoring.
func (t ParsedTransaction) SearchText() string {
	return strings.ToLower(strings.Join([]string{t.Text, t.Message, t.Sender, t.Receiver}, " "))
}

// Transaction is a persisted, categorized transaction.
// It is created once per CSV row during a processing run and afterwards
// only modified by reprocessing, never by the dashboard (except deletion).
type Transaction struct {
	ID                 int64
	ParsedTransaction
	Category           string
	CategoryConfidence float64
	VendorID           *int64
	VendorConfidence   float64
	VendorMatchSource  MatchSource
	BatchID            string
	CreatedAt          time.Time
}

// Vendor is a long-lived, deduplicated vendor record. The canonical name is
// unique under case-insensitive comparison.
type Vendor struct {
	ID                 int64
	Name               string
	Nicknames          []string
	Domain             string
	Description        string
	InvoicingCountry   string // ISO-2
	DefaultCurrency    string // ISO-3
	DefaultProductType string // "services" or "goods"
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// VendorEnrichment is one audit record of an enrichment event. Write-only
// from the pipeline's perspective.
type VendorEnrichment struct {
	ID         int64
	VendorID   int64
	Source     string
	Payload    string // raw enrichment JSON
	Confidence float64
	CreatedAt  time.Time
}

// JoinNicknames flattens a nickname list to the comma-delimited form used at
// the persistence boundary. The split/join round-trip is centralized here so
// no other package grows its own parsing.
func JoinNicknames(nicknames []string) string {
	cleaned := make([]string, 0, len(nicknames))
	for _, n := range nicknames {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return strings.Join(cleaned, ",")
}

// SplitNicknames parses the persisted comma-delimited form back into the
// ordered nickname list.
func SplitNicknames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
