package services

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

var reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RecordValidator cross-checks a reconciled invoice before it is saved.
type RecordValidator struct {
	tolerance   decimal.Decimal // relative tolerance (0.05 = 5%)
	defaultCode string
}

// NewRecordValidator creates a validator with a 5% tolerance. Items still
// carrying defaultCode are flagged for review.
func NewRecordValidator(defaultCode string) *RecordValidator {
	return &RecordValidator{tolerance: decimal.RequireFromString("0.05"), defaultCode: defaultCode}
}

// Validate performs all cross-validations on rec.
func (v *RecordValidator) Validate(rec models.InvoiceRecord) *models.ValidationResult {
	result := &models.ValidationResult{
		Errors:   []models.ValidationIssue{},
		Warnings: []models.ValidationIssue{},
	}

	for _, it := range rec.Items {
		result.Computed.ItemsTotal = result.Computed.ItemsTotal.Add(it.Value)
		result.Computed.ItemsNetWeight = result.Computed.ItemsNetWeight.Add(it.NetWeight)
		result.Computed.ItemsGrossWeight = result.Computed.ItemsGrossWeight.Add(it.GrossWeight)
	}

	v.validateTotal(rec, result)
	v.validateWeights(rec, result)
	v.validateItems(rec, result)
	v.validateHeader(rec, result)

	result.Valid = len(result.Errors) == 0
	result.NeedsReview = !result.Valid || len(result.Warnings) > 0
	return result
}

// validateTotal checks the header total against the sum of the lines.
func (v *RecordValidator) validateTotal(rec models.InvoiceRecord, result *models.ValidationResult) {
	if rec.TotalValue.IsZero() {
		result.Errors = append(result.Errors, models.ValidationIssue{
			Field:   "totalValue",
			Code:    "no_total",
			Message: "no total could be determined",
		})
		return
	}
	if len(rec.Items) == 0 {
		return
	}
	sum := result.Computed.ItemsTotal
	if !v.within(sum, rec.TotalValue) {
		result.Warnings = append(result.Warnings, models.ValidationIssue{
			Field:    "items",
			Code:     "items_total_mismatch",
			Expected: rec.TotalValue.StringFixed(2),
			Actual:   sum.StringFixed(2),
			Message:  "line values do not add up to the invoice total",
		})
	}
}

// validateWeights checks net never exceeds gross, on the header and per line.
func (v *RecordValidator) validateWeights(rec models.InvoiceRecord, result *models.ValidationResult) {
	if !rec.GrossWeight.IsZero() && rec.NetWeight.GreaterThan(rec.GrossWeight) {
		result.Warnings = append(result.Warnings, models.ValidationIssue{
			Field:    "netWeight",
			Code:     "net_exceeds_gross",
			Expected: "<= " + rec.GrossWeight.String(),
			Actual:   rec.NetWeight.String(),
		})
	}
	for i, it := range rec.Items {
		if !it.GrossWeight.IsZero() && it.NetWeight.GreaterThan(it.GrossWeight) {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Field:    itemField(i, "netWeight"),
				Code:     "net_exceeds_gross",
				Expected: "<= " + it.GrossWeight.String(),
				Actual:   it.NetWeight.String(),
			})
		}
	}
}

func (v *RecordValidator) validateItems(rec models.InvoiceRecord, result *models.ValidationResult) {
	for i, it := range rec.Items {
		if it.Description == "" {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Field: itemField(i, "description"),
				Code:  "missing_description",
			})
		}
		if it.Quantity <= 0 {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Field:  itemField(i, "quantity"),
				Code:   "invalid_quantity",
				Actual: strconv.Itoa(it.Quantity),
			})
		}
		if it.Value.IsNegative() {
			result.Errors = append(result.Errors, models.ValidationIssue{
				Field:  itemField(i, "value"),
				Code:   "negative_value",
				Actual: it.Value.String(),
			})
		}
		if v.defaultCode != "" && it.ClassificationCode == v.defaultCode {
			result.Warnings = append(result.Warnings, models.ValidationIssue{
				Field:   itemField(i, "classificationCode"),
				Code:    "default_classification",
				Actual:  it.ClassificationCode,
				Message: "code was not resolved, default applied",
			})
		}
	}
}

func (v *RecordValidator) validateHeader(rec models.InvoiceRecord, result *models.ValidationResult) {
	if rec.Number == "" {
		result.Warnings = append(result.Warnings, models.ValidationIssue{
			Field: "number",
			Code:  "missing_number",
		})
	}
	if rec.Date != "" && !reISODate.MatchString(rec.Date) {
		result.Warnings = append(result.Warnings, models.ValidationIssue{
			Field:    "date",
			Code:     "invalid_date",
			Expected: "YYYY-MM-DD",
			Actual:   rec.Date,
		})
	}
}

// within reports whether actual is within the tolerance of expected.
func (v *RecordValidator) within(actual, expected decimal.Decimal) bool {
	allowed := expected.Abs().Mul(v.tolerance)
	return actual.Sub(expected).Abs().LessThanOrEqual(allowed)
}

func itemField(i int, name string) string {
	return "items[" + strconv.Itoa(i) + "]." + name
}
