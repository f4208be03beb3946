// Package metadata mines candidate header values from structured OCR text.
//
// Every field has an ordered pattern list, most specific first. All matches
// of all patterns are kept, in order, duplicates included: consumers pick the
// first candidate or rank them, they never get a single committed value here.
package metadata

import (
	"regexp"
	"sort"
	"strings"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Amount shapes. Grouped amounts come first so "180.894,20" is not cut at
// the first separator. Labelled amounts may be small; bare ones need three
// integer digits to keep quantities out.
const (
	grouped   = `\d{1,3}(?:[. ]\d{3})+,\d{2}|\d{1,3}(?:,\d{3})+\.\d{2}`
	labelCore = `\b(?:` + grouped + `|\d{1,6}[.,]\d{2})`
	bareCore  = `\b(?:` + grouped + `|\d{3,6}[.,]\d{2})`
	tail      = `(?:\D|$)`
	labelAmt  = `(` + labelCore + `)` + tail
	bareAmt   = `(` + bareCore + `)` + tail
	currency  = `(?:DH|EUR|€|MAD|USD|\$)`
)

func label(l string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + l + `\s*[:\s]*` + labelAmt)
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)FACTURE\s*N°?\s*:?\s*(\d+)`),
	regexp.MustCompile(`(?i)N°\s*:?\s*(\d+)`),
	regexp.MustCompile(`(?i)(?:invoice|facture|n[°o]\.?\s*(?:invoice|facture)?)\s*[:\-]?\s*([A-Z0-9\-/]+)`),
	regexp.MustCompile(`(?i)(?:inv|fact)\s*[:\-]?\s*([A-Z0-9\-/]+)`),
	regexp.MustCompile(`(?i)([A-Z]{2,}\d{3,})`),
	regexp.MustCompile(`(\d{3,})`),
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)LE\s+(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`),
	regexp.MustCompile(`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`),
	regexp.MustCompile(`(\d{2,4}[-/]\d{1,2}[-/]\d{1,2})`),
	regexp.MustCompile(`(?i)(\d{1,2}\s+(?:janvier|février|mars|avril|mai|juin|juillet|août|septembre|octobre|novembre|décembre)\s+\d{2,4})`),
}

var weightPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Poids\s+Brut\s*:?\s*([\d,.]+)\s*KGS?`),
	regexp.MustCompile(`(?i)Poids\s+Net\s*:?\s*([\d,.]+)\s*KGS?`),
	regexp.MustCompile(`(?i)([\d,.]*\d)\s*KGS?\b`),
}

var totalPatterns = []*regexp.Regexp{
	label(`Montant\s*TTC`),
	label(`TOTAL\s*TTC`),
	label(`Montant\s*HT`),
	label(`TOTAL\s*HT`),
	regexp.MustCompile(`(?i)TOTAL\s*[:\s]+` + labelAmt),
	label(`MONTANT\s*TOTAL`),
	label(`SOUS\s*TOTAL`),
	label(`NET\s*À\s*PAYER`),
	label(`À\s*PAYER`),
	label(`Prix\s*total`),
	label(`Valeur\s*totale`),
	label(`Valeur\s*devise`),
	// line-final amounts
	regexp.MustCompile(`(?im)(` + bareCore + `)[ \t]*` + currency + `[ \t]*$`),
	regexp.MustCompile(`(?im)` + currency + `[ \t]*(` + bareCore + `)[ \t]*$`),
	regexp.MustCompile(`(?m)(` + bareCore + `)[ \t]*$`),
	// generic
	regexp.MustCompile(`(?i)FACTURE.*?` + bareAmt),
	regexp.MustCompile(`(?i)(` + bareCore + `)\s*` + currency),
	regexp.MustCompile(`(?i)` + currency + `\s*` + bareAmt),
	regexp.MustCompile(bareAmt),
}

var currencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(EUR|EURO|EUROS)\b|(€)`),
	regexp.MustCompile(`(?i)\b(USD|DOLLARS?)\b|(\$)`),
	regexp.MustCompile(`(?i)\b(DH|MAD|DIRHAMS?)\b`),
	regexp.MustCompile(`(?i)\b(GBP)\b|(£)`),
	regexp.MustCompile(`(?i)DEVISE\s*:?\s*([A-Z]{3})\b`),
	regexp.MustCompile(`(?i)CURRENCY\s*:?\s*([A-Z]{3})\b`),
}

// Mine runs every pattern cascade over text.
func Mine(text string) models.FieldCandidates {
	return models.FieldCandidates{
		InvoiceNumbers: collect(text, invoiceNumberPatterns),
		Dates:          collect(text, datePatterns),
		Weights:        collect(text, weightPatterns),
		Totals:         collect(text, totalPatterns),
		Currencies:     collect(text, currencyPatterns),
	}
}

// collect appends the non-empty groups of every match of every pattern.
func collect(text string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			for _, g := range m[1:] {
				if g != "" {
					out = append(out, g)
				}
			}
		}
	}
	return out
}

var highlightPatterns = []*regexp.Regexp{
	highlight(`Montant\s*TTC`),
	highlight(`TOTAL\s*TTC`),
	highlight(`Montant\s*HT`),
	highlight(`TOTAL\s*HT`),
	highlight(`Valeur\s*Totale`),
	highlight(`Valeur\s*devise`),
	highlight(`MONTANT\s*TOTAL`),
	highlight(`NET\s*À\s*PAYER`),
	highlight(`À\s*PAYER`),
	highlight(`SOUS\s*TOTAL`),
	highlight(`Prix\s*total`),
	highlight(`TOTAL`),
	regexp.MustCompile(`(?i)(` + bareCore + `[ \t]*` + currency + `)`),
	regexp.MustCompile(`(?i)(` + currency + `[ \t]*` + bareCore + `)` + tail),
	regexp.MustCompile(bareAmt),
}

// highlight builds a pattern whose first group spans the label and amount.
func highlight(l string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(` + l + `\s*[:\s]*` + labelCore + `)` + tail)
}

// Highlight returns a copy of text with every amount span, label included
// when there is one, wrapped in ">>> " and " <<<". Overlapping spans are
// merged so markers never nest.
func Highlight(text string) string {
	var spans [][2]int
	for _, re := range highlightPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if m[2] >= 0 {
				spans = append(spans, [2]int{m[2], m[3]})
			}
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})

	var b strings.Builder
	last, open, end := 0, -1, -1
	flush := func() {
		b.WriteString(text[last:open])
		b.WriteString(">>> ")
		b.WriteString(text[open:end])
		b.WriteString(" <<<")
		last = end
	}
	for _, s := range spans {
		if open >= 0 && s[0] < end {
			if s[1] > end {
				end = s[1]
			}
			continue
		}
		if open >= 0 {
			flush()
		}
		open, end = s[0], s[1]
	}
	flush()
	b.WriteString(text[last:])
	return b.String()
}

// Markers returns the highlighted fragments in order.
func Markers(highlighted string) []string {
	var out []string
	for _, m := range reMarker.FindAllStringSubmatch(highlighted, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

var reMarker = regexp.MustCompile(`>>>\s*(.+?)\s*<<<`)

var debugPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TOTAL\s*[:\s]+` + labelAmt),
	label(`MONTANT\s*TOTAL`),
	label(`NET\s*À\s*PAYER`),
	regexp.MustCompile(`(?i)(` + bareCore + `)\s*` + currency),
	regexp.MustCompile(`(?i)` + currency + `\s*` + bareAmt),
	regexp.MustCompile(bareAmt),
}

// DetectTotals returns the distinct amounts found by a reduced pattern set,
// in first-seen order. It backs the total-detection diagnostic endpoint.
func DetectTotals(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range collect(text, debugPatterns) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
