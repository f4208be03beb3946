// Package ocr turns page images into text through a tiered set of
// recognition engines.
package ocr

import (
	"context"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Engine recognises the text of one page image stored at path.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, path, lang string) (models.ExtractionResult, error)
}

// Loader performs the one-time setup of an in-process engine.
type Loader func(ctx context.Context) (Engine, error)
