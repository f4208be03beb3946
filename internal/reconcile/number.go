package reconcile

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// first numeric run; a space only continues a run before a 3-digit group
var reNumericRun = regexp.MustCompile(`\d+(?:[.,]\d+| \d{3}\b)*`)

// words that mark an amount written out in letters
var reWrittenAmount = regexp.MustCompile(`(?i)\b(?:DEUX|TROIS|QUATRE|CINQ|SIX|SEPT|HUIT|NEUF|DIX|ONZE|DOUZE|TREIZE|QUATORZE|QUINZE|SEIZE|VINGTS?|TRENTE|QUARANTE|CINQUANTE|SOIXANTE|CENTS?|MILLES?|MILLIONS?|CTS|CENTIMES?)\b`)

// ParseAmount extracts the first number in s, reading separators the way
// invoices print them: with both "." and "," the last one is the decimal
// point; a single separator used once is the decimal point; a separator
// repeated is a thousands separator. Unit and currency tokens around the
// number are ignored.
func ParseAmount(s string) (decimal.Decimal, bool) {
	run := reNumericRun.FindString(s)
	if run == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalizeNumber(run))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func normalizeNumber(run string) string {
	s := strings.ReplaceAll(run, " ", "")
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := lastDot
		if lastComma > lastDot {
			dec = lastComma
		}
		return digitsOnly(s[:dec]) + "." + digitsOnly(s[dec+1:])
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		if strings.Count(s, sep) == 1 {
			return strings.Replace(s, sep, ".", 1)
		}
		return strings.ReplaceAll(s, sep, "")
	default:
		return s
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsWrittenAmount reports whether s spells an amount out in French words.
func IsWrittenAmount(s string) bool {
	return reWrittenAmount.MatchString(s)
}

var currencyCodes = map[string]string{
	"EUR": "EUR", "EURO": "EUR", "EUROS": "EUR", "€": "EUR",
	"USD": "USD", "DOLLAR": "USD", "DOLLARS": "USD", "$": "USD",
	"DH": "MAD", "DHS": "MAD", "MAD": "MAD", "DIRHAM": "MAD", "DIRHAMS": "MAD",
	"GBP": "GBP", "£": "GBP",
}

var reCurrencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency maps a currency spelling or symbol to its 3-letter code.
func NormalizeCurrency(s string) (string, bool) {
	code, ok := currencyCodes[strings.ToUpper(strings.TrimSpace(s))]
	return code, ok
}
