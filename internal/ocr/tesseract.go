package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const (
	defaultTesseractTimeout    = 30 * time.Second
	defaultTesseractConfidence = 85.0
)

// TesseractOCR runs the tesseract command-line engine. It reports no
// per-page confidence, so a fixed estimate is returned.
type TesseractOCR struct {
	binary     string
	psm        int
	oem        int
	timeout    time.Duration
	confidence float64
	runner     Runner
}

// NewTesseractOCR creates the secondary engine from cfg.
func NewTesseractOCR(cfg models.OCRConfig, runner Runner) *TesseractOCR {
	t := &TesseractOCR{
		binary:     cfg.Tesseract,
		psm:        cfg.PSM,
		oem:        cfg.OEM,
		timeout:    cfg.Timeout,
		confidence: cfg.FixedConfidence,
		runner:     runner,
	}
	if t.binary == "" {
		t.binary = "tesseract"
	}
	if t.psm == 0 {
		t.psm = 6
	}
	if t.oem == 0 {
		t.oem = 3
	}
	if t.timeout <= 0 {
		t.timeout = defaultTesseractTimeout
	}
	if t.confidence <= 0 {
		t.confidence = defaultTesseractConfidence
	}
	if t.runner == nil {
		t.runner = ExecRunner{}
	}
	return t
}

func (t *TesseractOCR) Name() string { return "tesseract" }

// Binary returns the configured executable, for health checks.
func (t *TesseractOCR) Binary() string { return t.binary }

// Recognize writes the text next to a temporary output base and reads it back.
func (t *TesseractOCR) Recognize(ctx context.Context, path, lang string) (models.ExtractionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	outDir, err := os.MkdirTemp("", "ocr-out-*")
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	outBase := filepath.Join(outDir, "page")
	args := []string{path, outBase,
		"--psm", strconv.Itoa(t.psm),
		"--oem", strconv.Itoa(t.oem),
	}
	if lang != "" {
		args = append(args, "-l", lang)
	}

	if _, stderr, err := t.runner.Run(ctx, t.binary, args...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.ExtractionResult{}, fmt.Errorf("tesseract timed out after %s: %w", t.timeout, ctx.Err())
		}
		return models.ExtractionResult{}, fmt.Errorf("tesseract: %w (%s)", err, truncateStderr(stderr))
	}

	text, err := os.ReadFile(outBase + ".txt")
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("read tesseract output: %w", err)
	}

	return models.ExtractionResult{
		Text:       string(text),
		Confidence: t.confidence,
		Engine:     t.Name(),
	}, nil
}

func truncateStderr(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
