package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/metrics"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Registry holds the engine tiers in priority order. It is built once at
// startup and is safe for concurrent use.
type Registry struct {
	tiers      []Engine
	primaryErr error
	raster     *Rasterizer
	prep       *Preprocessor
	maxPages   int
	metrics    *metrics.Pipeline
	log        *logrus.Entry
}

// Options carries the optional collaborators of a Registry.
type Options struct {
	Rasterizer   *Rasterizer
	Preprocessor *Preprocessor
	Metrics      *metrics.Pipeline
	Log          *logrus.Entry
}

// NewRegistry runs the primary loader once and orders the tiers. A nil
// loader or a load failure leaves only the secondary tier; the failure is
// logged here and never retried.
func NewRegistry(ctx context.Context, cfg models.OCRConfig, primary Loader, secondary Engine, opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{
		raster:   opts.Rasterizer,
		prep:     opts.Preprocessor,
		maxPages: cfg.MaxPages,
		metrics:  opts.Metrics,
		log:      log.WithField("component", "ocr"),
	}
	if r.raster == nil {
		r.raster = NewRasterizer(cfg, nil)
	}
	if r.prep == nil {
		r.prep = NewPreprocessor(r.log)
	}

	if primary != nil {
		eng, err := primary(ctx)
		if err != nil {
			r.primaryErr = err
			r.log.WithError(err).Warn("primary recognition engine unavailable, using secondary only")
		} else {
			r.tiers = append(r.tiers, eng)
			r.log.WithField("engine", eng.Name()).Info("primary recognition engine loaded")
		}
	}
	if secondary != nil {
		r.tiers = append(r.tiers, secondary)
	}
	return r
}

// Engines lists the available tier names in order.
func (r *Registry) Engines() []string {
	names := make([]string, len(r.tiers))
	for i, e := range r.tiers {
		names[i] = e.Name()
	}
	return names
}

// PrimaryError reports why the primary tier was not loaded, if it wasn't.
func (r *Registry) PrimaryError() error { return r.primaryErr }

// Close releases engines holding resources.
func (r *Registry) Close() error {
	var errList []error
	for _, e := range r.tiers {
		if c, ok := e.(io.Closer); ok {
			errList = append(errList, c.Close())
		}
	}
	return errors.Join(errList...)
}

// Acquire recognises one page. The page is written to a temporary file that
// is removed before Acquire returns. Tiers are tried in order; a tier that
// fails or reads nothing hands over to the next. When every tier failed the
// empty result is returned together with a NoEngineAvailable error. When at
// least one tier ran but none produced text, the empty result is returned
// without error.
func (r *Registry) Acquire(ctx context.Context, page models.PageImage, lang string) (models.ExtractionResult, error) {
	if len(r.tiers) == 0 {
		return models.ExtractionResult{}, errs.New(errs.NoEngineAvailable, errors.New("no recognition engine configured"))
	}

	path, cleanup, err := writePage(page)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("write page %d: %w", page.Index, err)
	}
	defer cleanup()

	var failures []string
	ran := false
	for _, eng := range r.tiers {
		if err := ctx.Err(); err != nil {
			return models.ExtractionResult{}, err
		}
		log := r.log.WithFields(logrus.Fields{"page": page.Index, "engine": eng.Name()})

		res, err := eng.Recognize(ctx, path, lang)
		if err != nil {
			r.metrics.Tier(eng.Name(), metrics.TierFailed)
			log.WithError(err).Warn("recognition tier failed")
			failures = append(failures, eng.Name()+": "+err.Error())
			continue
		}
		ran = true
		if res.Empty() {
			r.metrics.Tier(eng.Name(), metrics.TierEmpty)
			log.Warn("recognition tier returned no text")
			continue
		}

		r.metrics.Tier(eng.Name(), metrics.TierOK)
		res.Engine = eng.Name()
		log.WithFields(logrus.Fields{
			"chars":      len(res.Text),
			"confidence": res.Confidence,
		}).Info("page recognised")
		return res, nil
	}

	if ran {
		return models.ExtractionResult{}, nil
	}
	return models.ExtractionResult{}, errs.New(errs.NoEngineAvailable,
		fmt.Errorf("all tiers failed: %s", strings.Join(failures, "; ")))
}

func writePage(page models.PageImage) (string, func(), error) {
	ext := page.Format
	if ext == "" {
		ext = "png"
	}
	f, err := os.CreateTemp("", fmt.Sprintf("page-%d-*.%s", page.Index, ext))
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(page.Data); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// DocumentText is the combined recognition output of a document.
type DocumentText struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"` // mean over pages with text
	Pages         int     `json:"pages"`
	PagesWithText int     `json:"pagesWithText"`
}

// AcquireDocument recognises every page of doc in order and joins the page
// texts with models.PageBreak. Pages without text are skipped.
func (r *Registry) AcquireDocument(ctx context.Context, doc models.Document, lang string) (DocumentText, error) {
	if !doc.IsPDF() {
		data, format := r.prep.Normalize(doc.Data, imageFormat(doc.Filename))
		res, err := r.Acquire(ctx, models.PageImage{Index: 1, Format: format, Data: data}, lang)
		if err != nil {
			return DocumentText{Pages: 1}, err
		}
		if res.Empty() {
			return DocumentText{Pages: 1}, errs.New(errs.NoTextFound, errors.New("no text found"))
		}
		return DocumentText{Text: res.Text, Confidence: res.Confidence, Pages: 1, PagesWithText: 1}, nil
	}
	return r.acquirePDF(ctx, doc, lang)
}

func (r *Registry) acquirePDF(ctx context.Context, doc models.Document, lang string) (DocumentText, error) {
	dir, err := os.MkdirTemp("", "ocr-doc-*")
	if err != nil {
		return DocumentText{}, err
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(pdfPath, doc.Data, 0o600); err != nil {
		return DocumentText{}, fmt.Errorf("write pdf: %w", err)
	}

	total, err := PageCount(doc.Data)
	probing := false
	if err != nil || total == 0 {
		r.log.WithError(err).Warn("could not read page count, probing pages")
		total, probing = probeLimit, true
	}
	if r.maxPages > 0 && total > r.maxPages {
		total = r.maxPages
	}

	var (
		texts    []string
		confSum  float64
		rendered int
		failed   int
		noEngine error
	)
	for n := 1; n <= total; n++ {
		page, err := r.raster.RenderPage(ctx, pdfPath, n)
		if err != nil {
			if probing && n > 1 {
				break
			}
			return DocumentText{Pages: rendered}, fmt.Errorf("convert pdf: %w", err)
		}
		rendered++

		res, err := r.Acquire(ctx, page, lang)
		if err != nil {
			if !errs.Is(err, errs.NoEngineAvailable) {
				return DocumentText{Pages: rendered}, err
			}
			noEngine = err
			failed++
			continue
		}
		if res.Empty() {
			r.log.WithField("page", n).Warn("no text found on page")
			continue
		}
		texts = append(texts, res.Text)
		confSum += res.Confidence
	}

	out := DocumentText{Pages: rendered, PagesWithText: len(texts)}
	if len(texts) == 0 {
		if failed == rendered && noEngine != nil {
			return out, noEngine
		}
		return out, errs.New(errs.NoTextFound, errors.New("no text found in PDF"))
	}
	out.Text = strings.Join(texts, models.PageBreak)
	out.Confidence = confSum / float64(len(texts))
	return out, nil
}

func imageFormat(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}
