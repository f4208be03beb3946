// Package export renders reconciled invoices as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const (
	InvoiceSheet = "Factures"
	ItemSheet    = "Lignes"
)

var invoiceHeaders = []string{
	"Source", "N° facture", "Date", "Devise", "Poids net", "Poids brut", "Valeur", "Lignes",
}

var itemHeaders = []string{
	"Source", "N° facture", "Ligne", "Paiement", "Code NGP", "Article", "Désignation",
	"Origine", "Quantité", "Unité", "Poids net", "Poids brut", "Valeur",
}

// Entry is one invoice with the label of the document it came from.
type Entry struct {
	Source string
	Record models.InvoiceRecord
}

// WriteWorkbook writes one header row per invoice to the Factures sheet and
// one row per line item to the Lignes sheet.
func WriteWorkbook(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ItemSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	writeRow(f, InvoiceSheet, 1, toAny(invoiceHeaders))
	writeRow(f, ItemSheet, 1, toAny(itemHeaders))

	itemRow := 2
	for i, e := range entries {
		rec := e.Record
		writeRow(f, InvoiceSheet, i+2, []any{
			e.Source, rec.Number, rec.Date, rec.Currency,
			rec.NetWeight.InexactFloat64(), rec.GrossWeight.InexactFloat64(), rec.TotalValue.InexactFloat64(),
			len(rec.Items),
		})
		for n, it := range rec.Items {
			writeRow(f, ItemSheet, itemRow, []any{
				e.Source, rec.Number, n + 1, it.PaymentFlag, it.ClassificationCode, it.ArticleCode,
				it.Description, it.OriginCountry, it.Quantity, it.Unit,
				it.NetWeight.InexactFloat64(), it.GrossWeight.InexactFloat64(), it.Value.InexactFloat64(),
			})
			itemRow++
		}
	}

	_ = f.SetColWidth(InvoiceSheet, "A", "A", 28)
	_ = f.SetColWidth(InvoiceSheet, "B", "D", 16)
	_ = f.SetColWidth(InvoiceSheet, "E", "G", 14)
	_ = f.SetColWidth(ItemSheet, "A", "A", 28)
	_ = f.SetColWidth(ItemSheet, "G", "G", 48)
	_ = f.SetColWidth(ItemSheet, "K", "M", 14)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
