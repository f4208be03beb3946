// Package pipeline runs one document through acquisition, structuring,
// mining, parsing, reconciliation and classification.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/classify"
	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/metadata"
	"github.com/facturaIA/invoice-extraction-service/internal/metrics"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
	"github.com/facturaIA/invoice-extraction-service/internal/ocr"
	"github.com/facturaIA/invoice-extraction-service/internal/reconcile"
	"github.com/facturaIA/invoice-extraction-service/internal/services"
	"github.com/facturaIA/invoice-extraction-service/internal/textstruct"
)

const defaultLanguage = "fra+eng"

// Acquirer reads the text of a document.
type Acquirer interface {
	AcquireDocument(ctx context.Context, doc models.Document, lang string) (ocr.DocumentText, error)
}

// DraftParser produces a draft record from structured text.
type DraftParser interface {
	Parse(ctx context.Context, text string, cand models.FieldCandidates) (ai.DraftRecord, error)
}

// Result is everything one invocation produced.
type Result struct {
	RequestID       string
	Invoice         models.InvoiceRecord
	Candidates      models.FieldCandidates
	Classifications []models.ClassificationCandidate
	Validation      *models.ValidationResult
	Text            models.StructuredText
	OCR             ocr.DocumentText
	OCRDuration     time.Duration
	AIDuration      time.Duration
	TotalDuration   time.Duration
}

// Processor wires the stages together. It is safe for concurrent use; each
// call owns its intermediate data.
type Processor struct {
	acquirer   Acquirer
	parser     DraftParser
	reconciler *reconcile.Reconciler
	resolver   *classify.Resolver
	validator  *services.RecordValidator
	lang       string
	metrics    *metrics.Pipeline
	log        *logrus.Entry
}

// Options carries optional settings of a Processor.
type Options struct {
	Language  string
	Validator *services.RecordValidator
	Metrics   *metrics.Pipeline
	Log       *logrus.Entry
}

// New creates a Processor. A nil resolver skips classification and a nil
// Options.Validator skips the consistency checks.
func New(acq Acquirer, parser DraftParser, rec *reconcile.Reconciler, res *classify.Resolver, opts Options) *Processor {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	return &Processor{
		acquirer:   acq,
		parser:     parser,
		reconciler: rec,
		resolver:   res,
		validator:  opts.Validator,
		lang:       opts.Language,
		metrics:    opts.Metrics,
		log:        log.WithField("component", "pipeline"),
	}
}

// Process runs every stage on doc. A failure aborts the invocation and is
// returned tagged with its stage.
func (p *Processor) Process(ctx context.Context, doc models.Document) (*Result, error) {
	res := &Result{RequestID: uuid.New().String()}
	log := p.log.WithFields(logrus.Fields{"req_id": res.RequestID, "file": doc.Filename})
	start := time.Now()

	text, err := p.acquirer.AcquireDocument(ctx, doc, p.lang)
	res.OCR = text
	res.OCRDuration = time.Since(start)
	p.metrics.ObserveStage(errs.StageAcquire, res.OCRDuration)
	if err != nil {
		return res, p.fail(log, errs.StageAcquire, err)
	}
	log.WithFields(logrus.Fields{
		"pages":       text.Pages,
		"chars":       len(text.Text),
		"confidence":  text.Confidence,
		"duration_ms": res.OCRDuration.Milliseconds(),
	}).Info("text acquired")

	if err := p.process(ctx, log, text.Text, res); err != nil {
		return res, err
	}
	res.TotalDuration = time.Since(start)
	p.metrics.Document(metrics.OutcomeSuccess)
	log.WithField("duration_ms", res.TotalDuration.Milliseconds()).Info("document processed")
	return res, nil
}

// ProcessText runs the stages after acquisition on already extracted text.
func (p *Processor) ProcessText(ctx context.Context, text string) (*Result, error) {
	res := &Result{RequestID: uuid.New().String()}
	log := p.log.WithField("req_id", res.RequestID)
	start := time.Now()
	if err := p.process(ctx, log, text, res); err != nil {
		return res, err
	}
	res.TotalDuration = time.Since(start)
	p.metrics.Document(metrics.OutcomeSuccess)
	return res, nil
}

func (p *Processor) process(ctx context.Context, log *logrus.Entry, text string, res *Result) error {
	res.Text = textstruct.Structure(text)
	structured := res.Text.String()
	res.Candidates = metadata.Mine(structured)
	log.WithFields(logrus.Fields{
		"lines":  len(res.Text.Lines),
		"totals": len(res.Candidates.Totals),
	}).Debug("text structured")

	start := time.Now()
	draft, err := p.parser.Parse(ctx, structured, res.Candidates)
	res.AIDuration = time.Since(start)
	p.metrics.ObserveStage(errs.StageParse, res.AIDuration)
	if err != nil {
		return p.fail(log, errs.StageParse, err)
	}

	start = time.Now()
	res.Invoice = p.reconciler.Reconcile(draft, res.Candidates)
	p.metrics.ObserveStage(errs.StageReconcile, time.Since(start))

	if p.resolver != nil {
		start = time.Now()
		res.Invoice.Items, res.Classifications = p.resolver.Resolve(ctx, res.Invoice.Items)
		p.metrics.ObserveStage(errs.StageClassify, time.Since(start))
	}

	if p.validator != nil {
		res.Validation = p.validator.Validate(res.Invoice)
		if res.Validation.NeedsReview {
			log.WithFields(logrus.Fields{
				"errors":   len(res.Validation.Errors),
				"warnings": len(res.Validation.Warnings),
			}).Info("record needs review")
		}
	}
	return nil
}

func (p *Processor) fail(log *logrus.Entry, stage string, err error) error {
	err = errs.WithStage(stage, err)
	p.metrics.Document(metrics.OutcomeFailure)
	log.WithError(err).WithFields(logrus.Fields{
		"stage": stage,
		"kind":  errs.KindOf(err),
	}).Error("document processing aborted")
	return err
}
