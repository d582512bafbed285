// Package category defines the closed set of transaction categories.
package category

import "strings"

// The categories are mutually exclusive and collectively exhaustive.
const (
	VendorPayment           = "vendor_payment"
	SalaryPayment           = "salary_payment"
	CustomerPaymentReceived = "customer_payment_received"
	TaxPayment              = "tax_payment"
	BankFee                 = "bank_fee"
	InternalTransfer        = "internal_transfer"
	NotCategorized          = "not_categorized"

	// Other is used internally as the oracle-failure fallback and is mapped
	// to NotCategorized at the persistence boundary.
	Other = "other"
)

// All lists the persistable categories in prompt order.
var All = []string{
	VendorPayment,
	SalaryPayment,
	CustomerPaymentReceived,
	TaxPayment,
	BankFee,
	InternalTransfer,
	NotCategorized,
}

// Valid reports whether c is a member of the closed category set.
func Valid(c string) bool {
	for _, k := range All {
		if c == k {
			return true
		}
	}
	return false
}

// Normalize maps an oracle-provided category onto the closed set. Unknown
// values and the internal "other" fallback become NotCategorized.
func Normalize(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == Other || !Valid(c) {
		return NotCategorized
	}
	return c
}

// Label is the human-readable display label ("vendor payment" for
// "vendor_payment"). The confidence calculator compares it to transaction
// text.
func Label(c string) string {
	return strings.ReplaceAll(c, "_", " ")
}
