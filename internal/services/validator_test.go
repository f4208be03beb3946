package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func codes(issues []models.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Field+":"+is.Code)
	}
	return out
}

func TestRecordValidator_Validate(t *testing.T) {
	clean := models.InvoiceRecord{
		Number:      "832",
		Date:        "2025-04-11",
		NetWeight:   dec("90"),
		GrossWeight: dec("100"),
		TotalValue:  dec("300"),
		Items: []models.LineItem{
			{Description: "TABLE", ClassificationCode: "94036000", Quantity: 1, Value: dec("150")},
			{Description: "LIT", ClassificationCode: "94035000", Quantity: 2, Value: dec("150")},
		},
	}

	tests := []struct {
		name         string
		mutate       func(r *models.InvoiceRecord)
		wantValid    bool
		wantReview   bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:         "clean record",
			mutate:       func(r *models.InvoiceRecord) {},
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
		{
			name:         "rounding within tolerance",
			mutate:       func(r *models.InvoiceRecord) { r.Items[1].Value = dec("149.99") },
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
		{
			name:         "items do not add up",
			mutate:       func(r *models.InvoiceRecord) { r.Items[1].Value = dec("50") },
			wantValid:    true,
			wantReview:   true,
			wantErrors:   []string{},
			wantWarnings: []string{"items:items_total_mismatch"},
		},
		{
			name:         "no total",
			mutate:       func(r *models.InvoiceRecord) { r.TotalValue = decimal.Zero },
			wantReview:   true,
			wantErrors:   []string{"totalValue:no_total"},
			wantWarnings: []string{},
		},
		{
			name: "weights and header",
			mutate: func(r *models.InvoiceRecord) {
				r.NetWeight = dec("120")
				r.Number = ""
				r.Date = "11 avril 2025"
			},
			wantValid:    true,
			wantReview:   true,
			wantErrors:   []string{},
			wantWarnings: []string{"netWeight:net_exceeds_gross", "number:missing_number", "date:invalid_date"},
		},
		{
			name: "bad lines",
			mutate: func(r *models.InvoiceRecord) {
				r.Items[0].ClassificationCode = "94039000"
				r.Items[0].Quantity = 0
				r.Items[1].Value = dec("-150")
				r.Items[1].NetWeight = dec("5")
				r.Items[1].GrossWeight = dec("4")
			},
			wantReview: true,
			wantErrors: []string{"items[1].value:negative_value"},
			wantWarnings: []string{
				"items:items_total_mismatch",
				"items[1].netWeight:net_exceeds_gross",
				"items[0].quantity:invalid_quantity",
				"items[0].classificationCode:default_classification",
			},
		},
	}

	v := NewRecordValidator("94039000")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := clean
			rec.Items = append([]models.LineItem(nil), clean.Items...)
			tt.mutate(&rec)

			res := v.Validate(rec)
			require.NotNil(t, res)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantReview, res.NeedsReview)
			assert.Equal(t, tt.wantErrors, codes(res.Errors))
			assert.Equal(t, tt.wantWarnings, codes(res.Warnings))
		})
	}
}

func TestRecordValidator_Computed(t *testing.T) {
	res := NewRecordValidator("").Validate(models.InvoiceRecord{
		Number:     "FA-1",
		TotalValue: dec("10"),
		Items: []models.LineItem{
			{Description: "A", Quantity: 1, Value: dec("4"), NetWeight: dec("1.5"), GrossWeight: dec("2")},
			{Description: "B", Quantity: 1, Value: dec("6"), NetWeight: dec("2.5"), GrossWeight: dec("3")},
		},
	})
	assert.Equal(t, "10", res.Computed.ItemsTotal.String())
	assert.Equal(t, "4", res.Computed.ItemsNetWeight.String())
	assert.Equal(t, "5", res.Computed.ItemsGrossWeight.String())
	assert.True(t, res.Valid)
	assert.False(t, res.NeedsReview)
}
