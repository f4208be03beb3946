package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvoice = `SOCIETE BOIS DU NORD
FACTURE N° 832
LE 11-04-2025
Poids Brut : 8,025 KGS
Poids Net : 6,825 KGS
ARMOIRE 2P
3.208,50
Montant TTC 180.894,20
DEVISE : EUR`

func TestMine_InvoiceNumbers(t *testing.T) {
	c := Mine(sampleInvoice)
	require.NotEmpty(t, c.InvoiceNumbers)
	assert.Equal(t, "832", c.InvoiceNumbers[0], "labelled number comes first")
	assert.Contains(t, c.InvoiceNumbers, "2025")
}

func TestMine_Dates(t *testing.T) {
	c := Mine(sampleInvoice)
	require.GreaterOrEqual(t, len(c.Dates), 2)
	// the labelled pattern and the generic one both match; duplicates kept
	assert.Equal(t, []string{"11-04-2025", "11-04-2025"}, c.Dates[:2])

	c = Mine("Casablanca, le 3 mars 2025")
	assert.Contains(t, c.Dates, "3 mars 2025")
}

func TestMine_Weights(t *testing.T) {
	c := Mine(sampleInvoice)
	require.GreaterOrEqual(t, len(c.Weights), 2)
	assert.Equal(t, "8,025", c.Weights[0])
	assert.Equal(t, "6,825", c.Weights[1])
}

func TestMine_Totals(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		first string
		all   []string
	}{
		{
			name:  "montant ttc with thousands",
			text:  "Montant TTC 180.894,20",
			first: "180.894,20",
		},
		{
			name:  "total with colon",
			text:  "TOTAL : 262.50",
			first: "262.50",
		},
		{
			name:  "net a payer",
			text:  "NET À PAYER : 3842,75",
			first: "3842,75",
		},
		{
			name:  "label beats earlier bare amount",
			text:  "ARMOIRE 2P 3.208,50\nTOTAL TTC 9.999,00",
			first: "9.999,00",
		},
		{
			name:  "amount before currency at line end",
			text:  "reste dû 1250,00 DH",
			first: "1250,00",
		},
		{
			name: "quantities ignored by bare patterns",
			text: "Qté 1,00",
			all:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Mine(tt.text)
			if tt.first == "" {
				assert.Equal(t, tt.all, c.Totals)
				return
			}
			require.NotEmpty(t, c.Totals)
			assert.Equal(t, tt.first, c.Totals[0])
		})
	}
}

func TestMine_TotalsKeepDuplicates(t *testing.T) {
	c := Mine("Montant TTC 180.894,20")
	// labelled, line-final and generic patterns all see the same amount
	assert.Equal(t, []string{"180.894,20", "180.894,20", "180.894,20"}, c.Totals)
}

func TestMine_Currencies(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		expect []string
	}{
		{"symbol", "Total 12,00 €", []string{"€"}},
		{"dirham", "262,50 DH", []string{"DH"}},
		{"devise label", "DEVISE : USD", []string{"USD", "USD"}},
		{"no false match inside word", "FOURNISSEUR", nil},
		{"written amount", "MILLE EUROS", []string{"EUROS"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Mine(tt.text).Currencies)
		})
	}
}

func TestMine_Empty(t *testing.T) {
	c := Mine("")
	assert.Empty(t, c.InvoiceNumbers)
	assert.Empty(t, c.Totals)
	assert.Empty(t, c.Currencies)
}

func TestHighlight(t *testing.T) {
	text := "ARMOIRE\nMontant TTC 180.894,20\nreste 1250,00 DH"
	out := Highlight(text)

	assert.Equal(t, "ARMOIRE\n>>> Montant TTC 180.894,20 <<<\nreste >>> 1250,00 DH <<<", out)
	assert.Equal(t, []string{"Montant TTC 180.894,20", "1250,00 DH"}, Markers(out))
	assert.Equal(t, 0, strings.Count(out, ">>> >>>"), "markers never nest")
}

func TestHighlight_NoAmounts(t *testing.T) {
	assert.Equal(t, "nothing here", Highlight("nothing here"))
}

func TestHighlight_DoesNotTouchCandidates(t *testing.T) {
	text := "TOTAL : 262.50"
	before := Mine(text)
	_ = Highlight(text)
	assert.Equal(t, before, Mine(text))
}

func TestDetectTotals(t *testing.T) {
	got := DetectTotals("TOTAL : 262.50\n262.50 EUR\nNET À PAYER 300,00")
	assert.Equal(t, []string{"262.50", "300,00"}, got)
}
