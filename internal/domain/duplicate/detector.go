// Package duplicate flags freshly parsed transactions that look like
// re-imports of statement lines already in the store.
package duplicate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbirkedal/vendorledger/internal/domain/confidence"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

const (
	// DefaultLookbackDays bounds how far back stored transactions are
	// compared against a new import.
	DefaultLookbackDays = 7

	textSimilarityThreshold = 0.85
)

// amountTolerance is the largest absolute amount difference still treated as
// the same amount.
var amountTolerance = decimal.NewFromFloat(0.01)

// Store is the slice of persistence the detector needs.
type Store interface {
	// ListTransactionsSince returns all stored transactions dated at or
	// after the given time.
	ListTransactionsSince(ctx context.Context, since time.Time) ([]model.Transaction, error)
}

// Candidate pairs a new transaction with the stored one it likely duplicates.
type Candidate struct {
	NewIndex int
	New      model.ParsedTransaction
	Existing model.Transaction
	Score    float64
}

// Detector scans new transactions against a recent window of stored ones.
type Detector struct {
	store Store
	now   func() time.Time
}

// NewDetector creates a detector backed by the given store.
func NewDetector(store Store) *Detector {
	return &Detector{store: store, now: time.Now}
}

// FindDuplicates compares each new transaction against stored transactions
// from the last lookbackDays days and returns at most one candidate per new
// transaction.
//
// A stored transaction qualifies when it is dated within one day, its amount
// is within 0.01 and its lowercased description is at least 85% similar. The
// first qualifying stored transaction wins; later ones are not scored even if
// they would score higher.
func (d *Detector) FindDuplicates(ctx context.Context, newTxns []model.ParsedTransaction, lookbackDays int) ([]Candidate, error) {
	if len(newTxns) == 0 {
		return nil, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	since := d.now().AddDate(0, 0, -lookbackDays)
	existing, err := d.store.ListTransactionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading recent transactions: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	for i, txn := range newTxns {
		newText := strings.ToLower(txn.Text)

		for _, stored := range existing {
			if daysApart(txn.Date, stored.Date) > 1 {
				continue
			}
			if txn.Amount.Sub(stored.Amount).Abs().GreaterThan(amountTolerance) {
				continue
			}

			similarity := confidence.Ratio(newText, strings.ToLower(stored.Text))
			if similarity < textSimilarityThreshold {
				continue
			}

			dateScore := 0.8
			if sameCalendarDay(txn.Date, stored.Date) {
				dateScore = 1.0
			}
			candidates = append(candidates, Candidate{
				NewIndex: i,
				New:      txn,
				Existing: stored,
				Score:    0.3*dateScore + 0.3 + 0.4*similarity,
			})
			break
		}
	}

	return candidates, nil
}

// ResubmissionMatch reports whether two transactions are the same statement
// line for the purpose of re-submitting a CSV: amounts within 0.01,
// descriptions exactly equal and dates within 24 hours. This is deliberately
// looser than the fuzzy scan in FindDuplicates.
func ResubmissionMatch(a, b model.ParsedTransaction) bool {
	if a.Amount.Sub(b.Amount).Abs().GreaterThanOrEqual(amountTolerance) {
		return false
	}
	if a.Text != b.Text {
		return false
	}
	return math.Abs(a.Date.Sub(b.Date).Hours()) < 24
}

func daysApart(a, b time.Time) int {
	return int(math.Abs(a.Sub(b).Hours()) / 24)
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
