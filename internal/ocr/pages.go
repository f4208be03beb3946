package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledongthuc/pdf"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// probeLimit bounds page probing when the page count cannot be read.
const probeLimit = 200

// Rasterizer renders PDF pages to PNG one at a time with pdftoppm.
type Rasterizer struct {
	binary string
	dpi    int
	runner Runner
}

// NewRasterizer creates a Rasterizer from cfg.
func NewRasterizer(cfg models.OCRConfig, runner Runner) *Rasterizer {
	r := &Rasterizer{binary: cfg.Pdftoppm, dpi: cfg.DPI, runner: runner}
	if r.binary == "" {
		r.binary = "pdftoppm"
	}
	if r.dpi <= 0 {
		r.dpi = 300
	}
	if r.runner == nil {
		r.runner = ExecRunner{}
	}
	return r
}

// Binary returns the configured executable, for health checks.
func (r *Rasterizer) Binary() string { return r.binary }

// PageCount reads the number of pages from the PDF trailer.
func PageCount(data []byte) (n int, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return rd.NumPage(), nil
}

// RenderPage renders page n (1-based) of the PDF at pdfPath. The PNG is
// read into memory and its file removed before returning.
func (r *Rasterizer) RenderPage(ctx context.Context, pdfPath string, n int) (models.PageImage, error) {
	dir, err := os.MkdirTemp("", "ocr-page-*")
	if err != nil {
		return models.PageImage{}, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	page := strconv.Itoa(n)
	// pdftoppm -r 300 -png -f N -l N -singlefile <in.pdf> <tmp/page>
	_, stderr, err := r.runner.Run(ctx, r.binary,
		"-r", strconv.Itoa(r.dpi), "-png", "-f", page, "-l", page, "-singlefile",
		pdfPath, prefix)
	if err != nil {
		return models.PageImage{}, fmt.Errorf("render page %d: %w (%s)", n, err, truncateStderr(stderr))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return models.PageImage{}, fmt.Errorf("render page %d: %w", n, err)
	}
	return models.PageImage{Index: n, Format: "png", Data: data}, nil
}
