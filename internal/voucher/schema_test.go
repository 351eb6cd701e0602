package voucher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func paymentSchema() []FieldDef {
	return []FieldDef{
		{Name: "payee", Type: FieldString, Required: true},
		{Name: "amount_limit", Type: FieldNumber},
		{Name: "due_date", Type: FieldDate},
		{Name: "urgent", Type: FieldBool},
		{Name: "payment_method", Type: FieldEnum, Enum: []string{"CASH", "TRANSFER", "CHEQUE"}},
	}
}

func TestValidateAttrsAcceptsConformingBag(t *testing.T) {
	attrs := map[string]any{
		"payee":          "PT Elektronik Jaya",
		"amount_limit":   "2500000.50",
		"due_date":       "2025-02-28",
		"urgent":         true,
		"payment_method": "TRANSFER",
	}
	assert.Empty(t, ValidateAttrs(paymentSchema(), attrs))
}

func TestValidateAttrsRequiredAndUndeclared(t *testing.T) {
	violations := ValidateAttrs(paymentSchema(), map[string]any{"payeee": "typo"})
	assert.Len(t, violations, 2)
	assert.Contains(t, violations, `attribute "payee" is required`)
	assert.Contains(t, violations, `attribute "payeee" is not declared`)
}

func TestValidateAttrsTypeChecks(t *testing.T) {
	cases := map[string]struct {
		attrs map[string]any
		valid bool
	}{
		"string gets int":        {map[string]any{"payee": 42}, false},
		"number gets word":       {map[string]any{"payee": "x", "amount_limit": "lots"}, false},
		"number accepts float":   {map[string]any{"payee": "x", "amount_limit": 12.5}, true},
		"date gets bad format":   {map[string]any{"payee": "x", "due_date": "28/02/2025"}, false},
		"date accepts time.Time": {map[string]any{"payee": "x", "due_date": time.Now()}, true},
		"bool gets string":       {map[string]any{"payee": "x", "urgent": "yes"}, false},
		"enum outside set":       {map[string]any{"payee": "x", "payment_method": "CRYPTO"}, false},
		"enum gets number":       {map[string]any{"payee": "x", "payment_method": 3}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			violations := ValidateAttrs(paymentSchema(), tc.attrs)
			if tc.valid {
				assert.Empty(t, violations)
			} else {
				assert.Len(t, violations, 1)
			}
		})
	}
}

func TestValidateAttrsCollectsEveryViolation(t *testing.T) {
	attrs := map[string]any{
		"amount_limit":   false,
		"due_date":       "tomorrow",
		"payment_method": "CRYPTO",
		"stray":          1,
	}
	// Missing payee plus four bad attributes.
	assert.Len(t, ValidateAttrs(paymentSchema(), attrs), 5)
}

func TestValidateAttrsEmptySchemaRejectsEverything(t *testing.T) {
	violations := ValidateAttrs(nil, map[string]any{"anything": 1})
	assert.Len(t, violations, 1)
	assert.Empty(t, ValidateAttrs(nil, nil))
}
