package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"vendor_payment", VendorPayment},
		{" Vendor_Payment ", VendorPayment},
		{"other", NotCategorized},
		{"groceries", NotCategorized},
		{"", NotCategorized},
		{"salary_payment", SalaryPayment},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input), "Normalize(%q)", tt.input)
	}
}

func TestValid(t *testing.T) {
	for _, c := range All {
		assert.True(t, Valid(c), c)
	}
	assert.False(t, Valid(Other), "the internal fallback is not persistable")
	assert.False(t, Valid("unknown"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "vendor payment", Label(VendorPayment))
	assert.Equal(t, "not categorized", Label(NotCategorized))
}
