package models

import "github.com/shopspring/decimal"

// ValidationIssue is one consistency problem found on a reconciled record.
type ValidationIssue struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ValidationComputed holds the values recomputed from the line items.
type ValidationComputed struct {
	ItemsTotal       decimal.Decimal `json:"itemsTotal"`
	ItemsNetWeight   decimal.Decimal `json:"itemsNetWeight"`
	ItemsGrossWeight decimal.Decimal `json:"itemsGrossWeight"`
}

// ValidationResult reports whether a record can be saved as is.
type ValidationResult struct {
	Valid       bool               `json:"valid"`
	NeedsReview bool               `json:"needsReview"`
	Errors      []ValidationIssue  `json:"errors"`
	Warnings    []ValidationIssue  `json:"warnings"`
	Computed    ValidationComputed `json:"computed"`
}
