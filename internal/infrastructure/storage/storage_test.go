package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
	"github.com/mbirkedal/vendorledger/internal/domain/vendor"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testVendor(name string) *model.Vendor {
	return &model.Vendor{
		Name:               name,
		Nicknames:          []string{name + " Payments"},
		Domain:             "example.com",
		DefaultCurrency:    "DKK",
		DefaultProductType: "services",
	}
}

func testTransaction(date time.Time, text string, amount string) *model.Transaction {
	amt, _ := decimal.NewFromString(amount)
	return &model.Transaction{
		ParsedTransaction: model.ParsedTransaction{
			Date:     date,
			Text:     text,
			Amount:   amt,
			Currency: "DKK",
		},
		Category:           category.VendorPayment,
		CategoryConfidence: 0.8,
		VendorMatchSource:  model.MatchSourceNone,
		BatchID:            "batch-1",
	}
}

func TestStorage_VendorRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := &model.Vendor{
		Name:               "Stripe",
		Nicknames:          []string{"Stripe Payments", "Stripe Inc"},
		Domain:             "stripe.com",
		Description:        "Payment processing",
		InvoicingCountry:   "IE",
		DefaultCurrency:    "EUR",
		DefaultProductType: "services",
	}
	require.NoError(t, store.CreateVendor(ctx, v))
	require.NotZero(t, v.ID)

	got, err := store.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stripe", got.Name)
	assert.Equal(t, []string{"Stripe Payments", "Stripe Inc"}, got.Nicknames)
	assert.Equal(t, "stripe.com", got.Domain)
	assert.Equal(t, "IE", got.InvoicingCountry)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStorage_GetVendorByName_CaseInsensitive(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateVendor(ctx, testVendor("Stripe")))

	got, err := store.GetVendorByName(ctx, "STRIPE")
	require.NoError(t, err)
	assert.Equal(t, "Stripe", got.Name)

	_, err = store.GetVendorByName(ctx, "nobody")
	assert.ErrorIs(t, err, vendor.ErrNotFound)
}

func TestStorage_CreateVendor_DuplicateName(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateVendor(ctx, testVendor("Stripe")))

	// Same name in a different case still violates the constraint.
	err := store.CreateVendor(ctx, testVendor("stripe"))
	assert.ErrorIs(t, err, vendor.ErrExists)
}

func TestStorage_UpdateVendor(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))

	v.Nicknames = []string{"Stripe Technology"}
	v.Description = "updated"
	require.NoError(t, store.UpdateVendor(ctx, v))

	got, err := store.GetVendor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Stripe Technology"}, got.Nicknames)
	assert.Equal(t, "updated", got.Description)
}

func TestStorage_UpdateVendor_Missing(t *testing.T) {
	store := newTestStorage(t)

	v := testVendor("Ghost")
	v.ID = 999
	err := store.UpdateVendor(context.Background(), v)
	assert.ErrorIs(t, err, vendor.ErrNotFound)
}

func TestStorage_UpdateVendor_RenameCollision(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.CreateVendor(ctx, testVendor("Stripe")))
	other := testVendor("Mailchimp")
	require.NoError(t, store.CreateVendor(ctx, other))

	other.Name = "stripe"
	assert.ErrorIs(t, store.UpdateVendor(ctx, other), vendor.ErrExists)
}

func TestStorage_ListVendors_OrderedByName(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	for _, name := range []string{"Zendesk", "atlassian", "Mailchimp"} {
		require.NoError(t, store.CreateVendor(ctx, testVendor(name)))
	}

	vendors, err := store.ListVendors(ctx)
	require.NoError(t, err)
	require.Len(t, vendors, 3)
	assert.Equal(t, "atlassian", vendors[0].Name)
	assert.Equal(t, "Mailchimp", vendors[1].Name)
	assert.Equal(t, "Zendesk", vendors[2].Name)
}

func TestStorage_DeleteVendors_NullifiesTransactionReference(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))

	txn := testTransaction(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "STRIPE TECHNOLOGY EU", "-1234.56")
	txn.VendorID = &v.ID
	txn.VendorMatchSource = model.MatchSourceLLM
	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{txn}))

	deleted, err := store.DeleteVendors(ctx, []int64{v.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The transaction survives with its vendor reference cleared.
	remaining, err := store.ListTransactionsSince(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Nil(t, remaining[0].VendorID)
}

func TestStorage_SaveTransactions_RoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	txn := testTransaction(date, "STRIPE TECHNOLOGY EU", "-1234.56")
	txn.Message = "Subscription"
	txn.Balance = decimal.RequireFromString("10000.44")
	txn.PostingDate = date.AddDate(0, 0, 1)

	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{txn}))
	require.NotZero(t, txn.ID)

	got, err := store.ListTransactionsSince(ctx, date.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Amounts survive exactly as decimals.
	assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("-1234.56")))
	assert.True(t, got[0].Balance.Equal(decimal.RequireFromString("10000.44")))
	assert.Equal(t, "STRIPE TECHNOLOGY EU", got[0].Text)
	assert.Equal(t, "Subscription", got[0].Message)
	assert.Equal(t, category.VendorPayment, got[0].Category)
	assert.True(t, got[0].PostingDate.Equal(date.AddDate(0, 0, 1)))
	assert.Equal(t, "batch-1", got[0].BatchID)
}

func TestStorage_ListTransactionsSince_Window(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	old := testTransaction(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "old", "-1")
	recent := testTransaction(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "recent", "-2")
	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{old, recent}))

	got, err := store.ListTransactionsSince(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].Text)
}

func TestStorage_ListTransactions_FiltersAndPagination(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	var txns []*model.Transaction
	for i := 0; i < 5; i++ {
		txn := testTransaction(base.AddDate(0, 0, i), "payment", "-10")
		if i%2 == 0 {
			txn.VendorID = &v.ID
		} else {
			txn.Category = category.BankFee
		}
		txns = append(txns, txn)
	}
	require.NoError(t, store.SaveTransactions(ctx, txns))

	byVendor, err := store.ListTransactions(ctx, TransactionFilters{VendorID: v.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, byVendor.TotalCount)
	assert.Equal(t, "Stripe", byVendor.Transactions[0].VendorName)

	byCategory, err := store.ListTransactions(ctx, TransactionFilters{Category: category.BankFee})
	require.NoError(t, err)
	assert.Equal(t, 2, byCategory.TotalCount)

	page, err := store.ListTransactions(ctx, TransactionFilters{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	assert.Len(t, page.Transactions, 1)

	// Newest first.
	all, err := store.ListTransactions(ctx, TransactionFilters{})
	require.NoError(t, err)
	require.Len(t, all.Transactions, 5)
	assert.True(t, all.Transactions[0].Date.After(all.Transactions[4].Date))
}

func TestStorage_DeleteTransactions(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a := testTransaction(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "a", "-1")
	b := testTransaction(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "b", "-2")
	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{a, b}))

	deleted, err := store.DeleteTransactions(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := store.ListTransactionsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].Text)
}

func TestStorage_GetStats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))

	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	paid := testTransaction(date, "stripe", "-100.50")
	paid.VendorID = &v.ID
	paid.VendorConfidence = 0.9
	paid.VendorMatchSource = model.MatchSourceDatabase

	fee := testTransaction(date, "fee", "-25")
	fee.Category = category.BankFee
	fee.CategoryConfidence = 0.6

	uncategorized := testTransaction(date, "mystery", "-1")
	uncategorized.Category = category.NotCategorized
	uncategorized.CategoryConfidence = 0.1

	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{paid, fee, uncategorized}))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTransactions)
	assert.Equal(t, 1, stats.TotalVendors)
	assert.Equal(t, 2, stats.CategorizedCount)
	assert.InDelta(t, (0.8+0.6+0.1)/3, stats.AvgCategoryConfidence, 1e-9)
	assert.InDelta(t, 0.9, stats.AvgVendorConfidence, 1e-9)
	assert.Equal(t, 1, stats.VendorMatchSources[string(model.MatchSourceDatabase)])

	var feeRow *CategoryCount
	for i := range stats.Categories {
		if stats.Categories[i].Category == category.BankFee {
			feeRow = &stats.Categories[i]
		}
	}
	require.NotNil(t, feeRow)
	assert.Equal(t, 1, feeRow.Count)
	assert.InDelta(t, -25.0, feeRow.TotalAmount, 1e-9)
}

func TestStorage_Enrichments(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))

	e := &model.VendorEnrichment{
		VendorID:   v.ID,
		Source:     "openai",
		Payload:    `{"name":"Stripe"}`,
		Confidence: 0.85,
	}
	require.NoError(t, store.SaveEnrichment(ctx, e))
	require.NotZero(t, e.ID)

	got, err := store.ListEnrichmentsByVendor(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "openai", got[0].Source)
	assert.Equal(t, `{"name":"Stripe"}`, got[0].Payload)
	assert.InDelta(t, 0.85, got[0].Confidence, 1e-9)
}

func TestStorage_Reset(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	v := testVendor("Stripe")
	require.NoError(t, store.CreateVendor(ctx, v))
	txn := testTransaction(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), "x", "-1")
	require.NoError(t, store.SaveTransactions(ctx, []*model.Transaction{txn}))

	require.NoError(t, store.Reset())

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTransactions)
	assert.Zero(t, stats.TotalVendors)
}

func TestStorage_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	store, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, store.CreateVendor(context.Background(), testVendor("Stripe")))
	require.NoError(t, store.Close())

	// Reopening replays nothing and keeps the data.
	store, err = NewStorage(path)
	require.NoError(t, err)
	defer store.Close()

	vendors, err := store.ListVendors(context.Background())
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}
