package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PageBreak separates the text of consecutive pages before structuring.
const PageBreak = "\n\n--- PAGE BREAK ---\n\n"

// Document is one uploaded file as handed to the pipeline.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IsPDF reports whether the document should be rasterised page by page.
func (d Document) IsPDF() bool {
	if d.ContentType == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(d.Filename), ".pdf")
}

// PageImage is a single rendered page awaiting recognition.
type PageImage struct {
	Index  int    // 1-based
	Format string // file extension without dot, e.g. "png"
	Data   []byte
}

// ExtractionResult is the output of one recognition run on one page.
type ExtractionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-100
	Engine     string  `json:"engine,omitempty"`
}

// Empty reports whether the result carries no readable text.
func (r ExtractionResult) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// StructuredText is OCR text reorganised into semantically atomic lines.
type StructuredText struct {
	Lines []string `json:"lines"`
}

// String joins the lines with newlines.
func (s StructuredText) String() string {
	return strings.Join(s.Lines, "\n")
}

// FieldCandidates holds pattern-matched values per header field, earliest first.
// Duplicates are kept on purpose; consumers rely on order and frequency.
type FieldCandidates struct {
	InvoiceNumbers []string `json:"potential_invoice_numbers"`
	Dates          []string `json:"potential_dates"`
	Weights        []string `json:"potential_weights"`
	Totals         []string `json:"potential_totals"`
	Currencies     []string `json:"potential_currencies"`
}

// InvoiceRecord is the reconciled invoice handed to persistence.
type InvoiceRecord struct {
	Number      string          `json:"number"`
	Date        string          `json:"date"`
	Currency    string          `json:"currency"`
	NetWeight   decimal.Decimal `json:"netWeight"`
	GrossWeight decimal.Decimal `json:"grossWeight"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	Items       []LineItem      `json:"items"`
}

// LineItem is one invoice line after reconciliation.
type LineItem struct {
	PaymentFlag        string          `json:"paymentFlag"`
	ClassificationCode string          `json:"classificationCode"`
	ArticleCode        string          `json:"articleCode"`
	Description        string          `json:"description"`
	OriginCountry      string          `json:"originCountry"`
	Quantity           int             `json:"quantity"`
	Unit               string          `json:"unit"`
	NetWeight          decimal.Decimal `json:"netWeight"`
	GrossWeight        decimal.Decimal `json:"grossWeight"`
	Value              decimal.Decimal `json:"value"`
}

// Confidence levels reported for a classification.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Classification sources.
const (
	SourceReference = "reference"
	SourceAI        = "ai"
	SourceDefault   = "default"
)

// ClassificationCandidate records how an item's code was chosen.
type ClassificationCandidate struct {
	Description string `json:"description"`
	Code        string `json:"code"`
	Confidence  string `json:"confidence"`
	Source      string `json:"source"`
	Rationale   string `json:"rationale,omitempty"`
}

// ReferenceCode is one row of the classification reference dataset.
type ReferenceCode struct {
	Code        string `json:"code_ngp"`
	Designation string `json:"designation"`
}

// ProcessResponse is the API answer for one processed document.
type ProcessResponse struct {
	Success         bool                      `json:"success"`
	RequestID       string                    `json:"requestId,omitempty"`
	Invoice         *InvoiceRecord            `json:"invoice,omitempty"`
	Candidates      *FieldCandidates          `json:"metadata,omitempty"`
	Classifications []ClassificationCandidate `json:"classifications,omitempty"`
	Validation      *ValidationResult         `json:"validation,omitempty"`
	Confidence      float64                   `json:"ocrConfidence"`
	Pages           int                       `json:"pages"`
	Dossier         string                    `json:"dossier,omitempty"`
	SavedTo         string                    `json:"savedTo,omitempty"`
	StoredObject    string                    `json:"storedObject,omitempty"`
	Error           string                    `json:"error,omitempty"`
	Stage           string                    `json:"stage,omitempty"`
	Kind            string                    `json:"kind,omitempty"`

	// Processing metadata
	OCRDuration   float64   `json:"ocrDuration,omitempty"`
	AIDuration    float64   `json:"aiDuration,omitempty"`
	TotalDuration float64   `json:"totalDuration"`
	ProcessedAt   time.Time `json:"processedAt"`
}
