package ai

import (
	"fmt"
	"strings"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// extractionPrompt builds the request for one document. highlighted is the
// structured text with amounts marked ">>> ... <<<".
func extractionPrompt(highlighted string, cand models.FieldCandidates) string {
	return fmt.Sprintf(`Tu es un EXPERT en lecture de factures françaises. Extrais les données avec une PRÉCISION MAXIMALE.

## FORMAT DU TEXTE
Le texte ci-dessous a été structuré: chaque élément est sur sa propre ligne.
Les montants repérés sont marqués >>> ainsi <<<.

## RÈGLES D'EXTRACTION
1. Numéro de facture: cherche "FACTURE N°", "N°", "FA" suivi du numéro exact (ex: FA009421)
2. Date: format DD/MM/YYYY ou DD-MM-YYYY, à convertir en YYYY-MM-DD
3. Total:
   - "Montant TTC 180.894,20" -> 180894.20
   - "TOTAL TTC 25.550,50" -> 25550.50
   - "TOTAL : 262.50" -> 262.50
   - "NET À PAYER : 3842.75" -> 3842.75
   - "À PAYER 845,20 DH" -> 845.20
   - aucun total trouvé -> 0.0
   IGNORE les montants écrits en toutes lettres.
4. Nombres:
   - virgule décimale -> point (255,50 -> 255.50)
   - retire les séparateurs de milliers (180.894,20 -> 180894.20)
5. Articles, chaque ligne peut contenir: code article, description, quantité, unité, prix unitaire, montant de la ligne.
   Exemple:
   "STRUCTURE- STRUCTURE MURAL EN BOIS 516 cm L/295 cm H 1,00 Pièce 3 208,50 3.208,50"
   -> M_fl_desig="STRUCTURE MURAL EN BOIS 516 cm L/295 cm H", quantity=1, M_fl_unite="Pièce", M_fl_valDev=3208.50
6. M_fl_Ngp: laisse vide, les codes sont attribués ensuite
7. Origine: cherche "ORIGINE", "MADE IN"; sinon laisse vide
8. Devise: cherche "EUR", "DH", "MAD", "€", "$"
%s
## RÉPONSE
Retourne UNIQUEMENT ce JSON (sans markdown, sans commentaires):
{
  "M_fe_num": "numéro exact",
  "M_fe_date": "YYYY-MM-DD",
  "M_fe_devise": "code devise ou vide",
  "M_fe_Pnet": poids_net_total,
  "M_fe_Pbrute": poids_brut_total,
  "M_fe_valDev": montant_total,
  "items": [
    {
      "AvecSansPaiment": "",
      "M_fl_Ngp": "",
      "M_fl_art": "code article si disponible",
      "M_fl_desig": "description complète",
      "M_fl_orig": "pays d'origine ou vide",
      "quantity": quantité,
      "M_fl_unite": "PCS",
      "M_fl_PNet": poids_net_ou_0,
      "M_fl_PBrut": poids_brut_ou_0,
      "M_fl_valDev": montant_de_la_ligne
    }
  ]
}

## TEXTE DE LA FACTURE
%s`, hintBlock(cand), highlighted)
}

// hintBlock lists the first candidate of each field.
func hintBlock(cand models.FieldCandidates) string {
	var b strings.Builder
	add := func(label string, values []string) {
		if len(values) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", label, values[0])
		}
	}
	add("Numéro de facture trouvé", cand.InvoiceNumbers)
	add("Date trouvée", cand.Dates)
	add("Poids trouvé", cand.Weights)
	add("Total trouvé", cand.Totals)
	add("Devise trouvée", cand.Currencies)
	if b.Len() == 0 {
		return ""
	}
	return "\n## INDICES\n" + b.String()
}
