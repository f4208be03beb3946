// Package textstruct repairs OCR text and rebuilds a line-per-fragment layout.
package textstruct

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// maxPasses bounds the fixed-point loop; real invoices settle in two.
const maxPasses = 8

// repairs fixes the systematic misencoding of accented characters by the
// recognition engine. Order matters: the generic replacement comes last.
var repairs = []struct{ from, to string }{
	{"Num�ro", "Numéro"},
	{"R�f�rence", "Référence"},
	{"D�signation", "Désignation"},
	{"Qt�", "Qté"},
	{"Unit�", "Unité"},
	{"Pi�ce", "Pièce"},
	{"r�glement", "règlement"},
	{"�ch�ance", "échéance"},
	{"Arr�t�e", "Arrêtée"},
	{"pr�sente", "présente"},
	{"�tage", "étage"},
	{"T�l", "Tél"},
	{"Cr�dit", "Crédit"},
	{"p�nalit�", "pénalité"},
	{"d�lais", "délais"},
	{"R�gularit�", "Régularité"},
	{"�", "é"},
}

var reTotalMisread = regexp.MustCompile(`\b(?:TOTAI|TOTALI|TQTAL)\b`)

// Repair applies the character repair table to text.
func Repair(text string) string {
	for _, r := range repairs {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return reTotalMisread.ReplaceAllString(text, "TOTAL")
}

// Structure repairs text and splits it into atomic lines. It is pure and
// idempotent: Structure(Structure(x).String()) equals Structure(x).
func Structure(text string) models.StructuredText {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = Repair(text)
	text = reSeparatorSpaces.ReplaceAllString(text, "$1$2$3")

	// Layout rules can isolate a misread glued to a digit, so the repair
	// table runs again after every pass.
	for i := 0; i < maxPasses; i++ {
		next := Repair(pass(text))
		if next == text {
			break
		}
		text = next
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return models.StructuredText{Lines: lines}
}

// pass runs the layout rules in order, then the cleanup.
func pass(text string) string {
	lines := strings.Split(text, "\n")
	for _, rule := range layoutRules {
		var out []string
		for _, l := range lines {
			out = append(out, strings.Split(rule(l), "\n")...)
		}
		lines = out
	}
	return cleanup(lines)
}

var (
	reColumns         = regexp.MustCompile(`[ \t]{3,}`)
	reSeparatorSpaces = regexp.MustCompile(`(\d)[ \t]*([,.])[ \t]*(\d)`)
	reDigitSpaces     = regexp.MustCompile(`(\d)[ \t]+(\d)`)
	reSpaces          = regexp.MustCompile(`[ \t]+`)
)

// cleanup splits column-separated data, normalises number spacing, collapses
// whitespace and drops blank lines.
func cleanup(lines []string) string {
	var out []string
	for _, l := range lines {
		for _, part := range reColumns.Split(l, -1) {
			part = reSeparatorSpaces.ReplaceAllString(part, "$1$2$3")
			for {
				joined := reDigitSpaces.ReplaceAllString(part, "$1$2")
				if joined == part {
					break
				}
				part = joined
			}
			part = strings.TrimSpace(reSpaces.ReplaceAllString(part, " "))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return strings.Join(out, "\n")
}

// layoutRules are applied in this order; the amount rules assume label
// boundaries already exist.
var layoutRules = []func(string) string{
	breakBeforeKeywords,
	breakAfterAmounts,
	isolateDates,
}

// keywords that open a new line. Longer labels precede their prefixes.
var keywords = []string{
	`NET À PAYER`, `À PAYER`, `Prix unitaire`, `Une pénalité`,
	`Référence`, `Numéro`, `Désignation`, `Arrêtée`, `Facture`, `Montant`,
	`TOTAL`, `Chèque`, `Unité`, `Pièce`, `Mètre`, `I\.C\.E`, `Date`, `Mode`,
	`Qté`, `Tél`, `N°`, `RC`,
}

var reKeyword = regexp.MustCompile(`(?i)[ \t]+(` + strings.Join(keywords, "|") + `)`)

// glued lists labels that stay on the same line as the word before them.
var glued = map[string][]string{
	"à payer": {"net"},
	"total":   {"montant", "sous", "prix", "valeur"},
	"n°":      {"facture"},
	"numéro":  {"facture"},
}

func breakBeforeKeywords(line string) string {
	matches := reKeyword.FindAllStringSubmatchIndex(line, -1)
	if matches == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		wsStart, kwStart, kwEnd := m[0], m[2], m[3]
		if wsStart == 0 || !keywordBoundary(line, kwStart, kwEnd) || isGlued(line[:wsStart], line[kwStart:kwEnd]) {
			continue
		}
		b.WriteString(line[last:wsStart])
		b.WriteByte('\n')
		last = kwStart
	}
	b.WriteString(line[last:])
	return b.String()
}

// keywordBoundary rejects matches that are only the prefix of a longer word.
func keywordBoundary(line string, start, end int) bool {
	last, _ := utf8.DecodeLastRuneInString(line[start:end])
	if !unicode.IsLetter(last) {
		return true
	}
	if end >= len(line) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(line[end:])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

func isGlued(before, keyword string) bool {
	prev := strings.ToLower(lastWord(before))
	for _, w := range glued[strings.ToLower(keyword)] {
		if prev == w {
			return true
		}
	}
	return false
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ":")
}

// Amount alternatives: dot-grouped with decimal comma, comma-grouped with
// decimal point, space-grouped, then plain two-decimal amounts.
const amountPattern = `\d{1,3}(?:\.\d{3})+,\d{2}|\d{1,3}(?:,\d{3})+\.\d{2}|\d{1,3}(?: \d{3})+[.,]\d{2}|\d+[.,]\d{2}`

var (
	reAmount       = regexp.MustCompile(amountPattern)
	reCurrencyTail = regexp.MustCompile(`^[ \t]*(?i:EURO|EUR|€|DIRHAMS?|DH|MAD|USD|\$|GBP|£)`)
)

// AmountSpans returns the byte ranges of standalone amounts in line. Spans
// glued to further digits (dates, references) are ignored.
func AmountSpans(line string) [][2]int {
	var spans [][2]int
	for _, m := range reAmount.FindAllStringIndex(line, -1) {
		if !standalone(line, m[0], m[1]) {
			continue
		}
		spans = append(spans, [2]int{m[0], m[1]})
	}
	return spans
}

func standalone(line string, start, end int) bool {
	if start > 0 {
		prev := line[start-1]
		if isDigit(prev) {
			return false
		}
		if (prev == '.' || prev == ',') && start > 1 && isDigit(line[start-2]) {
			return false
		}
	}
	if end < len(line) {
		next := line[end]
		if isDigit(next) {
			return false
		}
		if (next == '.' || next == ',') && end+1 < len(line) && isDigit(line[end+1]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// breakAfterAmounts ends the line after every amount, or amount plus
// currency, that is followed by more text. This also separates amounts the
// engine concatenated onto one line.
func breakAfterAmounts(line string) string {
	spans := AmountSpans(line)
	if spans == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, s := range spans {
		end := s[1]
		if end < last {
			continue
		}
		if loc := reCurrencyTail.FindStringIndex(line[end:]); loc != nil && wordEnds(line, end+loc[1]) {
			end += loc[1]
		}
		rest := line[end:]
		if strings.TrimSpace(rest) == "" {
			break
		}
		b.WriteString(line[last:end])
		b.WriteByte('\n')
		last = end + (len(rest) - len(strings.TrimLeft(rest, " \t")))
	}
	b.WriteString(line[last:])
	return b.String()
}

func wordEnds(line string, i int) bool {
	if i >= len(line) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(line[i:])
	return !unicode.IsLetter(r)
}

var reDate = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// isolateDates puts every dd/mm/yyyy date on its own line.
func isolateDates(line string) string {
	matches := reDate.FindAllStringIndex(line, -1)
	if matches == nil {
		return line
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m[0] > 0 && isDigit(line[m[0]-1]) || m[1] < len(line) && isDigit(line[m[1]]) {
			continue
		}
		before := line[last:m[0]]
		if strings.TrimSpace(before) != "" {
			b.WriteString(before)
			b.WriteByte('\n')
		}
		b.WriteString(line[m[0]:m[1]])
		last = m[1]
		if strings.TrimSpace(line[m[1]:]) != "" {
			b.WriteByte('\n')
		}
	}
	b.WriteString(line[last:])
	return b.String()
}
