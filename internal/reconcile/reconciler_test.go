package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

func num(s string) ai.Value { return ai.Value{Kind: ai.Number, Raw: s} }
func txt(s string) ai.Value { return ai.Value{Kind: ai.Text, Raw: s} }

var null = ai.Value{Kind: ai.Null}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"180.894,20", "180894.20", true},
		{"Montant TTC 180.894,20", "180894.20", true},
		{"1,250.00", "1250.00", true},
		{"3 208,50 3.208,50", "3208.50", true},
		{"262.50", "262.50", true},
		{"12,5 KG", "12.50", true},
		{"KGS 1.234.567", "1234567.00", true},
		{"EUR 845,20", "845.20", true},
		{"12 500 KG", "12500.00", true},
		{"1.250", "1.25", true},
		{"42", "42.00", true},
		{"À CALCULER", "0.00", false},
		{"", "0.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestIsWrittenAmount(t *testing.T) {
	assert.True(t, IsWrittenAmount("DEUX CENT SOIXANTE DEUX EUR 50 CTS"))
	assert.True(t, IsWrittenAmount("cent quatre-vingts dirhams"))
	assert.False(t, IsWrittenAmount("262,50 EUR"))
	assert.False(t, IsWrittenAmount("Septembre"))
	assert.False(t, IsWrittenAmount("POURCENTAGE"))
}

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"€", "EUR", true},
		{"EURO", "EUR", true},
		{"eur", "EUR", true},
		{" Euros ", "EUR", true},
		{"$", "USD", true},
		{"Dollar", "USD", true},
		{"DH", "MAD", true},
		{"dirham", "MAD", true},
		{"£", "GBP", true},
		{"FOURNISSEUR", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeCurrency(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func values(items []models.LineItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Value.StringFixed(2)
	}
	return out
}

func TestReconcile_Distribution(t *testing.T) {
	tests := []struct {
		name  string
		total ai.Value
		items []ai.Value
		want  []string
	}{
		{"two zero items split", num("300"), []ai.Value{num("0"), null}, []string{"150.00", "150.00"}},
		{"single zero item takes total", num("300"), []ai.Value{{}}, []string{"300.00"}},
		{"non-zero item untouched", num("300"), []ai.Value{num("120"), num("0")}, []string{"120.00", "0.00"}},
		{"remainder on last item", num("100"), []ai.Value{{}, {}, {}}, []string{"33.33", "33.33", "33.34"}},
		{"no total", null, []ai.Value{{}}, []string{"0.00"}},
	}
	r := New(models.ReconcileConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := ai.DraftRecord{TotalValue: tt.total}
			for _, v := range tt.items {
				draft.Items = append(draft.Items, ai.DraftItem{Value: v})
			}
			rec := r.Reconcile(draft, models.FieldCandidates{})
			assert.Equal(t, tt.want, values(rec.Items))
		})
	}
}

func TestReconcile_Currency(t *testing.T) {
	tests := []struct {
		name  string
		draft ai.Value
		cands []string
		want  string
	}{
		{"symbol", txt("€"), nil, "EUR"},
		{"spelled", txt("EURO"), nil, "EUR"},
		{"code", txt("EUR"), []string{"DH"}, "EUR"},
		{"unmapped code kept", txt("chf"), []string{"EUR"}, "CHF"},
		{"first candidate that maps", null, []string{"FOURNISSEUR", "DIRHAMS", "EUR"}, "MAD"},
		{"nothing", ai.Value{}, nil, "MAD"},
	}
	r := New(models.ReconcileConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := r.Reconcile(ai.DraftRecord{Currency: tt.draft}, models.FieldCandidates{Currencies: tt.cands})
			assert.Equal(t, tt.want, rec.Currency)
		})
	}
}

func TestReconcile_Total(t *testing.T) {
	tests := []struct {
		name  string
		total ai.Value
		cands []string
		want  string
	}{
		{"number kept", num("180894.20"), []string{"999,00"}, "180894.20"},
		{"text parsed", txt("180.894,20 EUR"), nil, "180894.20"},
		{"written uses best candidate", txt("DEUX CENT SOIXANTE DEUX EUR 50 CTS"), []string{"262,50", "10,00", "2 000 000,00"}, "262.50"},
		{"written without candidates", txt("DEUX CENT EUROS"), nil, "0.00"},
		{"digits beside written words discarded", txt("262,50 (DEUX CENT SOIXANTE DEUX)"), nil, "0.00"},
		{"digits beside written words use candidate", txt("262,50 (DEUX CENT SOIXANTE DEUX)"), []string{"262,50"}, "262.50"},
		{"zero adopts highest plausible", num("0"), []string{"3.208,50", "180.894,20", "12,00"}, "180894.20"},
		{"missing adopts candidate", null, []string{"262.50"}, "262.50"},
		{"nothing", null, nil, "0.00"},
		{"bounds configurable", num("0"), []string{"20,00"}, "0.00"},
	}
	r := New(models.ReconcileConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := r.Reconcile(ai.DraftRecord{TotalValue: tt.total}, models.FieldCandidates{Totals: tt.cands})
			assert.Equal(t, tt.want, rec.TotalValue.StringFixed(2))
			assert.False(t, rec.TotalValue.IsNegative())
		})
	}

	low := New(models.ReconcileConfig{PlausibleMin: 10, PlausibleMax: 100}, nil)
	rec := low.Reconcile(ai.DraftRecord{}, models.FieldCandidates{Totals: []string{"20,00", "262.50"}})
	assert.Equal(t, "20.00", rec.TotalValue.StringFixed(2))
}

func TestReconcile_Weights(t *testing.T) {
	r := New(models.ReconcileConfig{}, nil)
	rec := r.Reconcile(ai.DraftRecord{
		NetWeight:   txt("12,5 KGS"),
		GrossWeight: num("14.75"),
	}, models.FieldCandidates{})
	assert.Equal(t, "12.50", rec.NetWeight.StringFixed(2))
	assert.Equal(t, "14.75", rec.GrossWeight.StringFixed(2))
}

func TestReconcile_CoercionFailureResetsGroup(t *testing.T) {
	r := New(models.ReconcileConfig{}, nil)
	rec := r.Reconcile(ai.DraftRecord{
		Number:      txt("FA009421"),
		NetWeight:   num("-3"),
		GrossWeight: num("14"),
		TotalValue:  num("500"),
		Items: []ai.DraftItem{
			{Description: txt("TABLE"), Value: num("-1"), Quantity: num("4")},
			{Description: txt("CHAISE"), Value: num("80"), Quantity: num("2")},
		},
	}, models.FieldCandidates{})

	assert.Equal(t, "FA009421", rec.Number)
	assert.True(t, rec.NetWeight.IsZero())
	assert.True(t, rec.GrossWeight.IsZero())
	assert.True(t, rec.TotalValue.IsZero())

	require.Len(t, rec.Items, 2)
	assert.True(t, rec.Items[0].Value.IsZero())
	assert.Equal(t, 1, rec.Items[0].Quantity)
	assert.Equal(t, "80.00", rec.Items[1].Value.StringFixed(2))
	assert.Equal(t, 2, rec.Items[1].Quantity)
}

func TestReconcile_ItemDefaults(t *testing.T) {
	r := New(models.ReconcileConfig{}, nil)
	rec := r.Reconcile(ai.DraftRecord{
		Items: []ai.DraftItem{
			{},
			{
				Description:   txt("  STRUCTURE MURAL EN BOIS "),
				OriginCountry: txt("ITALIE"),
				Unit:          txt("Pièce"),
				Quantity:      txt("2,00"),
				ArticleCode:   txt("STR-516"),
			},
			{Quantity: num("0"), Unit: null},
		},
	}, models.FieldCandidates{})

	require.Len(t, rec.Items, 3)
	first := rec.Items[0]
	assert.Equal(t, "Article 1", first.Description)
	assert.Equal(t, "MAROC", first.OriginCountry)
	assert.Equal(t, "PCS", first.Unit)
	assert.Equal(t, 1, first.Quantity)
	assert.Equal(t, "", first.ClassificationCode)
	assert.True(t, first.NetWeight.IsZero())

	second := rec.Items[1]
	assert.Equal(t, "STRUCTURE MURAL EN BOIS", second.Description)
	assert.Equal(t, "ITALIE", second.OriginCountry)
	assert.Equal(t, "Pièce", second.Unit)
	assert.Equal(t, 2, second.Quantity)
	assert.Equal(t, "STR-516", second.ArticleCode)

	assert.Equal(t, "Article 3", rec.Items[2].Description)
	assert.Equal(t, 1, rec.Items[2].Quantity)
	assert.Equal(t, "PCS", rec.Items[2].Unit)
}

func TestReconcile_HeaderText(t *testing.T) {
	tests := []struct {
		name     string
		number   ai.Value
		date     ai.Value
		wantNum  string
		wantDate string
	}{
		{"clean", txt("FA009421"), txt("2025-03-14"), "FA009421", "2025-03-14"},
		{"noise removed", txt(" FA 009421# "), txt("14/03/2025"), "FA009421", "2025-03-14"},
		{"slash and dash kept", txt("N°832/2025-B"), txt("5-3-2025"), "N832/2025-B", "2025-03-05"},
		{"unknown date kept", txt("A1"), txt("mars 2025"), "A1", "mars 2025"},
		{"null", null, null, "", ""},
		{"numeric number", num("832"), ai.Value{}, "832", ""},
	}
	r := New(models.ReconcileConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := r.Reconcile(ai.DraftRecord{Number: tt.number, Date: tt.date}, models.FieldCandidates{})
			assert.Equal(t, tt.wantNum, rec.Number)
			assert.Equal(t, tt.wantDate, rec.Date)
			assert.NotNil(t, rec.Items)
		})
	}
}
