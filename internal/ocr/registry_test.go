package ocr

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

type MockEngine struct {
	mock.Mock
	name string
}

func (m *MockEngine) Name() string { return m.name }

func (m *MockEngine) Recognize(ctx context.Context, path, lang string) (models.ExtractionResult, error) {
	args := m.Called(ctx, path, lang)
	return args.Get(0).(models.ExtractionResult), args.Error(1)
}

func loaderFor(e Engine, err error) Loader {
	return func(context.Context) (Engine, error) { return e, err }
}

var testPage = models.PageImage{Index: 1, Format: "png", Data: []byte("fake")}

func TestRegistry_Acquire(t *testing.T) {
	tests := []struct {
		name       string
		primary    func(*MockEngine)
		secondary  func(*MockEngine)
		loadErr    error
		wantText   string
		wantEngine string
		wantKind   errs.Kind
	}{
		{
			name: "primary succeeds",
			primary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: "FACTURE", Confidence: 93}, nil)
			},
			secondary:  func(m *MockEngine) {},
			wantText:   "FACTURE",
			wantEngine: "gemini",
		},
		{
			name: "primary fails, secondary used",
			primary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{}, errors.New("quota"))
			},
			secondary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: "TOTAL", Confidence: 85}, nil)
			},
			wantText:   "TOTAL",
			wantEngine: "tesseract",
		},
		{
			name:    "primary not loaded",
			loadErr: errors.New("no key"),
			secondary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: "TOTAL", Confidence: 85}, nil)
			},
			wantText:   "TOTAL",
			wantEngine: "tesseract",
		},
		{
			name: "primary empty, secondary reads",
			primary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: "  \n", Confidence: 10}, nil)
			},
			secondary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: "N° 832", Confidence: 85}, nil)
			},
			wantText:   "N° 832",
			wantEngine: "tesseract",
		},
		{
			name: "all tiers fail",
			primary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{}, errors.New("quota"))
			},
			secondary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{}, errors.New("exit status 1"))
			},
			wantKind: errs.NoEngineAvailable,
		},
		{
			name: "tiers ran but read nothing",
			primary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{}, errors.New("quota"))
			},
			secondary: func(m *MockEngine) {
				m.On("Recognize", mock.Anything, mock.Anything, "fra+eng").
					Return(models.ExtractionResult{Text: ""}, nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &MockEngine{name: "gemini"}
			secondary := &MockEngine{name: "tesseract"}
			if tt.primary != nil {
				tt.primary(primary)
			}
			tt.secondary(secondary)

			reg := NewRegistry(context.Background(), models.OCRConfig{}, loaderFor(primary, tt.loadErr), secondary, Options{})
			res, err := reg.Acquire(context.Background(), testPage, "fra+eng")

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errs.KindOf(err))
				assert.True(t, res.Empty())
				assert.Zero(t, res.Confidence)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, tt.wantEngine, res.Engine)
			primary.AssertExpectations(t)
			secondary.AssertExpectations(t)
		})
	}
}

func TestRegistry_AcquireRemovesTempFile(t *testing.T) {
	var seen string
	eng := &MockEngine{name: "tesseract"}
	eng.On("Recognize", mock.Anything, mock.Anything, "fra").
		Run(func(args mock.Arguments) {
			seen = args.String(1)
			_, err := os.Stat(seen)
			assert.NoError(t, err, "page file exists during recognition")
		}).
		Return(models.ExtractionResult{Text: "x"}, nil)

	reg := NewRegistry(context.Background(), models.OCRConfig{}, nil, eng, Options{})
	_, err := reg.Acquire(context.Background(), testPage, "fra")
	require.NoError(t, err)

	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
}

func TestRegistry_NoTiers(t *testing.T) {
	reg := NewRegistry(context.Background(), models.OCRConfig{}, loaderFor(nil, errors.New("no key")), nil, Options{})
	assert.Empty(t, reg.Engines())
	assert.EqualError(t, reg.PrimaryError(), "no key")

	_, err := reg.Acquire(context.Background(), testPage, "fra")
	assert.True(t, errs.Is(err, errs.NoEngineAvailable))
}

// pdfRunner fakes pdftoppm: it writes a PNG for pages up to pages and fails
// beyond.
type pdfRunner struct {
	pages int
	calls int
}

func (r *pdfRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls++
	page := args[4] // -r 300 -png -f N
	if n, _ := strconv.Atoi(page); n > r.pages {
		return nil, []byte("Wrong page range given"), errors.New("exit status 99")
	}
	prefix := args[len(args)-1]
	return nil, nil, os.WriteFile(prefix+".png", []byte("png page "+page), 0o600)
}

// pageEngine returns the page file content as text unless it is listed empty.
type pageEngine struct {
	empty map[string]bool
}

func (pageEngine) Name() string { return "tesseract" }

func (e pageEngine) Recognize(ctx context.Context, path, lang string) (models.ExtractionResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	if e.empty[string(b)] {
		return models.ExtractionResult{Confidence: 85}, nil
	}
	return models.ExtractionResult{Text: "text of " + string(b), Confidence: 85}, nil
}

func TestRegistry_AcquireDocument_PDF(t *testing.T) {
	runner := &pdfRunner{pages: 3}
	reg := NewRegistry(context.Background(), models.OCRConfig{}, nil,
		pageEngine{empty: map[string]bool{"png page 2": true}},
		Options{Rasterizer: NewRasterizer(models.OCRConfig{}, runner)})

	// not a parseable PDF, so pages are probed until rendering fails
	doc := models.Document{Filename: "scan.PDF", Data: []byte("%PDF-1.4 broken")}
	out, err := reg.AcquireDocument(context.Background(), doc, "fra")
	require.NoError(t, err)

	assert.Equal(t, 3, out.Pages)
	assert.Equal(t, 2, out.PagesWithText)
	assert.Equal(t, "text of png page 1"+models.PageBreak+"text of png page 3", out.Text)
	assert.Equal(t, float64(85), out.Confidence)
	assert.Equal(t, 4, runner.calls)
}

func TestRegistry_AcquireDocument_NoText(t *testing.T) {
	runner := &pdfRunner{pages: 2}
	reg := NewRegistry(context.Background(), models.OCRConfig{}, nil,
		pageEngine{empty: map[string]bool{"png page 1": true, "png page 2": true}},
		Options{Rasterizer: NewRasterizer(models.OCRConfig{}, runner)})

	_, err := reg.AcquireDocument(context.Background(), models.Document{Filename: "a.pdf", Data: []byte("x")}, "fra")
	assert.True(t, errs.Is(err, errs.NoTextFound))
}

func TestRegistry_AcquireDocument_NoEngine(t *testing.T) {
	runner := &pdfRunner{pages: 1}
	failing := &MockEngine{name: "tesseract"}
	failing.On("Recognize", mock.Anything, mock.Anything, "fra").
		Return(models.ExtractionResult{}, errors.New("not installed"))
	reg := NewRegistry(context.Background(), models.OCRConfig{}, nil, failing,
		Options{Rasterizer: NewRasterizer(models.OCRConfig{}, runner)})

	_, err := reg.AcquireDocument(context.Background(), models.Document{Filename: "a.pdf", Data: []byte("x")}, "fra")
	assert.True(t, errs.Is(err, errs.NoEngineAvailable))
}

func TestRegistry_AcquireDocument_Image(t *testing.T) {
	eng := &MockEngine{name: "tesseract"}
	eng.On("Recognize", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasSuffix(p, ".jpg")
	}), "fra").Return(models.ExtractionResult{Text: "FACTURE N° 1", Confidence: 85}, nil)

	reg := NewRegistry(context.Background(), models.OCRConfig{}, nil, eng, Options{})
	// undecodable bytes keep their original format
	out, err := reg.AcquireDocument(context.Background(), models.Document{Filename: "scan.jpg", Data: []byte("not an image")}, "fra")
	require.NoError(t, err)
	assert.Equal(t, "FACTURE N° 1", out.Text)
	assert.Equal(t, 1, out.Pages)
	eng.AssertExpectations(t)
}

func TestRegistry_MaxPages(t *testing.T) {
	runner := &pdfRunner{pages: 5}
	reg := NewRegistry(context.Background(), models.OCRConfig{MaxPages: 2}, nil, pageEngine{},
		Options{Rasterizer: NewRasterizer(models.OCRConfig{}, runner)})

	out, err := reg.AcquireDocument(context.Background(), models.Document{Filename: "a.pdf", Data: []byte("x")}, "fra")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, 2, runner.calls)
}
