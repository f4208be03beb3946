package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// FileStore writes records as JSON files when the database is unavailable.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates a FileStore writing into dir.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir, now: time.Now}
}

type fileRecord struct {
	ID      string `json:"id"`
	Dossier string `json:"dossier,omitempty"`
	SavedAt string `json:"saved_at"`
	models.InvoiceRecord
}

// Save writes rec to invoice_data_<timestamp>.json and returns the path.
// A second save within the same second gets a numeric suffix.
func (s *FileStore) Save(rec models.InvoiceRecord, dossier string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create fallback dir: %w", err)
	}
	now := s.now()
	data, err := json.MarshalIndent(fileRecord{
		ID:            uuid.New().String(),
		Dossier:       dossier,
		SavedAt:       now.Format(time.RFC3339),
		InvoiceRecord: rec,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	base := "invoice_data_" + now.Format("20060102_150405")
	for n := 0; ; n++ {
		name := base + ".json"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.json", base, n)
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", name, err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return "", fmt.Errorf("write %s: %w", name, werr)
		}
		if cerr != nil {
			return "", fmt.Errorf("close %s: %w", name, cerr)
		}
		return path, nil
	}
}
