// Package classify assigns a classification code to every invoice line.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/metrics"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const (
	DefaultCode    = "94039000"
	defaultTimeout = 60 * time.Second
	maxTokens      = 2000
	minCodeLength  = 6
)

var placeholders = map[string]bool{
	"":            true,
	"CODE REQUIS": true,
	"N/A":         true,
	"NULL":        true,
	"NONE":        true,
}

// ValidCode reports whether code is usable as is.
func ValidCode(code string) bool {
	code = strings.TrimSpace(code)
	return len(code) >= minCodeLength && !placeholders[strings.ToUpper(code)]
}

// Resolver fills missing classification codes with one batched reasoning
// request and falls back to a default code for anything left.
type Resolver struct {
	reasoner    ai.Reasoner
	refs        *ReferenceCache
	timeout     time.Duration
	defaultCode string
	metrics     *metrics.Pipeline
	log         *logrus.Entry
}

// NewResolver creates a Resolver. reasoner may be nil, in which case every
// missing code gets the default.
func NewResolver(reasoner ai.Reasoner, refs *ReferenceCache, cfg models.ClassifyConfig, m *metrics.Pipeline, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Resolver{
		reasoner:    reasoner,
		refs:        refs,
		timeout:     cfg.LookupTimeout,
		defaultCode: cfg.DefaultCode,
		metrics:     m,
		log:         log.WithField("component", "classify"),
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if !ValidCode(r.defaultCode) {
		r.defaultCode = DefaultCode
	}
	return r
}

type classification struct {
	Description string `json:"description"`
	Code        string `json:"ngp_code"`
	Confidence  string `json:"confidence"`
	Reasoning   string `json:"reasoning"`
}

// Resolve returns a copy of items where every classification code is
// valid, plus one candidate per item that needed a code. It never fails.
func (r *Resolver) Resolve(ctx context.Context, items []models.LineItem) ([]models.LineItem, []models.ClassificationCandidate) {
	out := make([]models.LineItem, len(items))
	copy(out, items)

	var pending []int
	for i, it := range out {
		if !ValidCode(it.ClassificationCode) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}

	descriptions := make([]string, len(pending))
	for k, i := range pending {
		descriptions[k] = out[i].Description
	}

	refs := r.refs.Codes(ctx)
	if len(refs) == 0 {
		refs = FallbackReferences
	}
	known := make(map[string]bool, len(refs))
	for _, ref := range refs {
		known[ref.Code] = true
	}

	replies, err := r.ask(ctx, descriptions, refs)
	if err != nil {
		r.log.WithError(err).Warn("classification request failed, using default codes")
	}

	candidates := make([]models.ClassificationCandidate, len(pending))
	fallbacks := 0
	for k, i := range pending {
		cand := models.ClassificationCandidate{Description: descriptions[k]}
		var reply classification
		if k < len(replies) {
			reply = replies[k]
		}
		code := normalizeCode(reply.Code)

		switch {
		case ValidCode(code):
			cand.Code = code
			cand.Confidence = normalizeConfidence(reply.Confidence)
			cand.Rationale = reply.Reasoning
			cand.Source = models.SourceAI
			if known[code] {
				cand.Source = models.SourceReference
			}
		default:
			fallbacks++
			cand.Code = r.defaultCode
			cand.Confidence = models.ConfidenceLow
			cand.Source = models.SourceDefault
			cand.Rationale = "Code par défaut - classification manuelle recommandée"
		}
		out[i].ClassificationCode = cand.Code
		candidates[k] = cand
	}

	// backstop over every line
	for i := range out {
		if !ValidCode(out[i].ClassificationCode) {
			fallbacks++
			out[i].ClassificationCode = r.defaultCode
		}
	}

	if fallbacks > 0 {
		r.metrics.Fallbacks(fallbacks)
		r.log.WithFields(logrus.Fields{
			"outcome": errs.ClassificationFallback,
			"count":   fallbacks,
		}).Warn("default classification code assigned")
	}
	r.log.WithFields(logrus.Fields{"items": len(out), "resolved": len(pending)}).Info("classification completed")
	return out, candidates
}

func (r *Resolver) ask(ctx context.Context, descriptions []string, refs []models.ReferenceCode) ([]classification, error) {
	if r.reasoner == nil {
		return nil, errors.New("no reasoning service configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	answer, err := r.reasoner.Ask(ctx, ai.Question{
		Prompt:      classificationPrompt(descriptions, refs),
		MaxTokens:   maxTokens,
		Temperature: ai.DefaultTemperature,
		TopP:        ai.DefaultTopP,
	})
	if err != nil {
		return nil, err
	}
	doc, err := ai.DecodeReply(answer)
	if err != nil {
		return nil, err
	}
	var reply struct {
		Classifications []classification `json:"classifications"`
	}
	if err := json.Unmarshal(doc, &reply); err != nil {
		return nil, errs.Malformed(answer, fmt.Errorf("decode classifications: %w", err))
	}
	return reply.Classifications, nil
}

func classificationPrompt(descriptions []string, refs []models.ReferenceCode) string {
	var codes, products strings.Builder
	for _, ref := range refs {
		fmt.Fprintf(&codes, "- %s: %s\n", ref.Code, ref.Designation)
	}
	for i, d := range descriptions {
		fmt.Fprintf(&products, "%d. %s\n", i+1, d)
	}
	return fmt.Sprintf(`Tu es un expert en classification NGP (Nomenclature Générale des Produits) pour les douanes marocaines.

## CODES NGP DISPONIBLES
%s
## PRODUITS À CLASSIFIER
%s
## RÈGLES
1. Utilise en priorité les codes listés ci-dessus
2. Sinon, utilise ta connaissance des codes NGP internationaux
3. JAMAIS de valeur null, N/A ou vide: toujours un code à 8 chiffres
4. Meubles en bois: codes 940xxxxx; structures et panneaux en bois: 94036000, 94035000 ou 94039000
5. Si incertain, utilise le code de la catégorie parente (ex: 94039000)
6. Une classification par produit, dans le même ordre

Retourne UNIQUEMENT ce JSON:
{
  "classifications": [
    {
      "description": "description exacte du produit",
      "ngp_code": "code à 8 chiffres",
      "confidence": "high|medium|low",
      "reasoning": "pourquoi ce code"
    }
  ]
}`, codes.String(), products.String())
}

// normalizeCode drops the spaces and dots some answers put in codes.
func normalizeCode(code string) string {
	return strings.NewReplacer(" ", "", ".", "").Replace(strings.TrimSpace(code))
}

func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceLow:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}
