package confidence

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

func sampleTransaction() model.ParsedTransaction {
	return model.ParsedTransaction{
		Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Text:     "Payment to Stripe",
		Amount:   decimal.NewFromInt(-100),
		Currency: "DKK",
	}
}

func TestTransactionQualityScore_Empty(t *testing.T) {
	assert.Equal(t, 0.0, TransactionQualityScore(model.ParsedTransaction{}))
}

func TestTransactionQualityScore_Known(t *testing.T) {
	// text: 17 chars, 3 words -> (17/50)*(0.7+0.3*0.3)*0.3
	// amount: log10(100)/4 = 0.5 -> *0.2
	// completeness: date + currency = 2/5 -> *0.3
	textPart := (17.0 / 50.0) * (0.7 + 0.3*(3.0/10.0)) * 0.3
	want := textPart + 0.5*0.2 + 0.4*0.3
	assert.InDelta(t, want, TransactionQualityScore(sampleTransaction()), 1e-9)
}

func TestTransactionQualityScore_Bounded(t *testing.T) {
	txns := []model.ParsedTransaction{
		{},
		sampleTransaction(),
		{
			Date: time.Now(), Text: "Very long description of a recurring vendor subscription payment for cloud services",
			Message: "Invoice 2024-03 for the March billing cycle", Amount: decimal.NewFromFloat(-12999.50),
			Currency: "EUR", Sender: "Acme ApS", Receiver: "Stripe Technology Europe Ltd",
		},
		{Amount: decimal.NewFromFloat(0.01)},
	}
	for _, txn := range txns {
		score := TransactionQualityScore(txn)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestTransactionQualityScore_AmountFloor(t *testing.T) {
	// Any nonzero amount scores at least 0.3 on the amount component.
	tiny := model.ParsedTransaction{Amount: decimal.NewFromFloat(0.50)}
	assert.InDelta(t, 0.3*0.2, TransactionQualityScore(tiny), 1e-9)
}

func TestCategoryConfidence_WithinBounds(t *testing.T) {
	txns := []model.ParsedTransaction{{}, sampleTransaction()}
	for _, txn := range txns {
		for _, cat := range category.All {
			got := CategoryConfidence(txn, cat, nil)
			assert.GreaterOrEqual(t, got, 0.1, "category %s", cat)
			assert.LessOrEqual(t, got, 1.0, "category %s", cat)
		}
	}
}

func TestCategoryConfidence_OracleBlend(t *testing.T) {
	txn := sampleTransaction()
	oracle := 0.95

	withOracle := CategoryConfidence(txn, category.VendorPayment, &oracle)
	withoutOracle := CategoryConfidence(txn, category.VendorPayment, nil)

	// A high oracle confidence dominates the pattern-only score 70/30.
	assert.Greater(t, withOracle, withoutOracle)
}

func TestCategoryConfidence_Deterministic(t *testing.T) {
	txn := sampleTransaction()
	first := CategoryConfidence(txn, category.SalaryPayment, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CategoryConfidence(txn, category.SalaryPayment, nil))
	}
}

func TestVendorConfidence_EmptyName(t *testing.T) {
	assert.Equal(t, 0.0, VendorConfidence("", sampleTransaction(), nil))
}

func TestVendorConfidence_StrongWordMatch(t *testing.T) {
	txn := model.ParsedTransaction{Text: "STRIPE TECHNOLOGY EU"}
	// "stripe" matches a transaction word exactly: combined >= 0.8, which the
	// sigmoid maps above 0.95.
	got := VendorConfidence("Stripe", txn, nil)
	assert.Greater(t, got, 0.9)
	assert.LessOrEqual(t, got, 1.0)
}

func TestVendorConfidence_UnrelatedName(t *testing.T) {
	txn := model.ParsedTransaction{Text: "STRIPE TECHNOLOGY EU"}
	got := VendorConfidence("Maersk", txn, nil)
	assert.Less(t, got, 0.5)
}

func TestVendorConfidence_IdentificationBlend(t *testing.T) {
	txn := model.ParsedTransaction{Text: "STRIPE TECHNOLOGY EU"}
	low := 0.1
	blended := VendorConfidence("Stripe", txn, &low)
	pure := VendorConfidence("Stripe", txn, nil)
	// Blending in a low identification confidence pulls the score down 40%.
	assert.InDelta(t, 0.6*pure+0.4*low, blended, 1e-9)
}

func TestDomainConfidence_InvalidDomain(t *testing.T) {
	for _, domain := range []string{"", "not a domain"} {
		valid, conf := DomainConfidence(domain, 0, 0, 0, 200)
		assert.False(t, valid)
		assert.Equal(t, 0.0, conf)
	}
}

func TestDomainConfidence_NotFound(t *testing.T) {
	valid, conf := DomainConfidence("stripe.com", 0, 0, 0, 404)
	assert.False(t, valid)
	assert.LessOrEqual(t, conf, 0.1)
	assert.InDelta(t, 0.05, conf, 1e-9)
}

func TestDomainConfidence_NearMissStatus(t *testing.T) {
	valid, conf := DomainConfidence("stripe.com", 0, 0, 0, 201)
	assert.False(t, valid)
	assert.InDelta(t, 0.099, conf, 1e-9)
}

func TestDomainConfidence_FullMatch(t *testing.T) {
	valid, conf := DomainConfidence("stripe.com", 500*time.Millisecond, 2, 2, 200)
	require.True(t, valid)
	// content = 0.2 + 0.6*sigmoid(5*(1.0-0.3)), time factor 1.0
	want := 0.2 + 0.6*sigmoid(1.0, 0.3, 5)
	assert.InDelta(t, want, conf, 1e-9)
}

func TestDomainConfidence_SlowResponse(t *testing.T) {
	fast, fastConf := DomainConfidence("stripe.com", 500*time.Millisecond, 1, 2, 200)
	slow, slowConf := DomainConfidence("stripe.com", 2*time.Second, 1, 2, 200)
	require.True(t, fast)
	require.True(t, slow)
	assert.InDelta(t, fastConf*0.9, slowConf, 1e-9)
}

func TestDomainConfidence_NoContentMatches(t *testing.T) {
	valid, conf := DomainConfidence("example.com", 100*time.Millisecond, 0, 5, 200)
	require.True(t, valid)
	// Base score for responding, clamped no lower than 0.1.
	assert.InDelta(t, 0.2, conf, 1e-9)
}

func TestLLMFallbackConfidence(t *testing.T) {
	empty := model.ParsedTransaction{}

	assert.InDelta(t, 0.3, LLMFallbackConfidence(empty, ""), 1e-9)
	assert.InDelta(t, 0.4, LLMFallbackConfidence(empty, category.InternalTransfer), 1e-9)
	assert.InDelta(t, 0.4, LLMFallbackConfidence(empty, category.SalaryPayment), 1e-9)
	assert.InDelta(t, 0.4, LLMFallbackConfidence(empty, category.BankFee), 1e-9)
	assert.InDelta(t, 0.25, LLMFallbackConfidence(empty, category.VendorPayment), 1e-9)

	full := model.ParsedTransaction{
		Date: time.Now(), Text: "A reasonably long transaction description with detail",
		Message: "and a message of useful length too", Amount: decimal.NewFromInt(-5000),
		Currency: "DKK", Sender: "a", Receiver: "b",
	}
	got := LLMFallbackConfidence(full, category.InternalTransfer)
	assert.GreaterOrEqual(t, got, 0.2)
	assert.LessOrEqual(t, got, 0.8)
}

func TestDomainPenaltyFactor(t *testing.T) {
	assert.InDelta(t, 0.9, DomainPenaltyFactor(true, 0.8), 1e-9)
	assert.InDelta(t, 0.5, DomainPenaltyFactor(true, 0.0), 1e-9)
	assert.InDelta(t, 1.0, DomainPenaltyFactor(true, 1.0), 1e-9)
	assert.Equal(t, 0.8, DomainPenaltyFactor(false, 0.6))
	assert.Equal(t, 0.7, DomainPenaltyFactor(false, 0.3))
	assert.Equal(t, 0.6, DomainPenaltyFactor(false, 0.05))
}
