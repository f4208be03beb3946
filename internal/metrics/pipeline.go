package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Document outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OCR tier results.
const (
	TierOK      = "ok"
	TierEmpty   = "empty"
	TierFailed  = "failed"
	TierSkipped = "skipped"
)

// Pipeline collects per-stage timings and outcomes. A nil *Pipeline is valid
// and records nothing, so components can be built without metrics.
type Pipeline struct {
	stageDuration *prometheus.HistogramVec
	documents     *prometheus.CounterVec
	fallbacks     prometheus.Counter
	ocrTier       *prometheus.CounterVec
}

// NewPipeline creates the pipeline collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoice_pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage.",
				Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		documents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_pipeline_documents_total",
				Help: "Documents processed, by outcome.",
			},
			[]string{"outcome"},
		),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoice_classification_fallbacks_total",
			Help: "Line items that received the default classification code.",
		}),
		ocrTier: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_ocr_tier_total",
				Help: "Recognition attempts per engine tier and result.",
			},
			[]string{"engine", "result"},
		),
	}

	for _, c := range []prometheus.Collector{p.stageDuration, p.documents, p.fallbacks, p.ocrTier} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ObserveStage records how long a stage took.
func (p *Pipeline) ObserveStage(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Document counts one finished document.
func (p *Pipeline) Document(outcome string) {
	if p == nil {
		return
	}
	p.documents.WithLabelValues(outcome).Inc()
}

// Fallbacks adds n default-code assignments.
func (p *Pipeline) Fallbacks(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.fallbacks.Add(float64(n))
}

// Tier counts one recognition attempt.
func (p *Pipeline) Tier(engine, result string) {
	if p == nil {
		return
	}
	p.ocrTier.WithLabelValues(engine, result).Inc()
}
