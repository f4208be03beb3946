package classify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// ReferenceLimit caps the reference list sent with a classification request.
const ReferenceLimit = 100

// ReferenceDataset looks up classification codes by code or designation.
type ReferenceDataset interface {
	Search(ctx context.Context, term string, limit int) ([]models.ReferenceCode, error)
}

// FallbackReferences is sent when the dataset is unavailable.
var FallbackReferences = []models.ReferenceCode{
	{Code: "94036000", Designation: "Meubles en bois pour chambres à coucher"},
	{Code: "94035000", Designation: "Meubles en bois pour chambres"},
	{Code: "94039000", Designation: "Autres meubles en bois"},
	{Code: "44219000", Designation: "Autres ouvrages en bois"},
	{Code: "94034000", Designation: "Meubles de cuisine en bois"},
	{Code: "94038100", Designation: "Meubles en bois pour bureau"},
	{Code: "94038900", Designation: "Autres meubles en bois"},
	{Code: "94033000", Designation: "Meubles en bois pour bureau"},
	{Code: "94037000", Designation: "Meubles en plastique"},
	{Code: "44181000", Designation: "Fenêtres, portes-fenêtres et leurs cadres"},
	{Code: "44189000", Designation: "Autres ouvrages de menuiserie"},
	{Code: "85287100", Designation: "Supports pour équipements électroniques"},
}

// ReferenceCache loads the reference list once and serves it read-only
// afterwards. A failed load is retried after RetryAfter; the caller sees an
// empty list meanwhile. A successful load, even an empty one, is final.
type ReferenceCache struct {
	dataset ReferenceDataset
	limit   int
	log     *logrus.Entry

	mu      sync.Mutex
	loaded  bool
	codes   []models.ReferenceCode
	retryAt time.Time
	now     func() time.Time
}

const (
	// LoadTimeout bounds a single load of the reference list.
	LoadTimeout = 10 * time.Second
	// RetryAfter is the pause after a failed load.
	RetryAfter = time.Minute
)

// NewReferenceCache wraps dataset. A nil dataset yields an always-empty
// cache.
func NewReferenceCache(dataset ReferenceDataset, limit int, log *logrus.Entry) *ReferenceCache {
	if limit <= 0 {
		limit = ReferenceLimit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReferenceCache{
		dataset: dataset,
		limit:   limit,
		log:     log.WithField("component", "references"),
		now:     time.Now,
	}
}

// Warm loads the list ahead of the first classification request.
func (c *ReferenceCache) Warm(ctx context.Context) {
	c.Codes(ctx)
}

// Codes returns the cached list, loading it on first use. The load is
// detached from ctx cancellation so an abandoned request cannot poison the
// cache.
func (c *ReferenceCache) Codes(ctx context.Context) []models.ReferenceCode {
	if c == nil || c.dataset == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.codes
	}
	if now := c.now(); now.Before(c.retryAt) {
		return nil
	}

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoadTimeout)
	defer cancel()
	codes, err := c.dataset.Search(loadCtx, "", c.limit)
	if err != nil {
		c.retryAt = c.now().Add(RetryAfter)
		c.log.WithError(err).WithField("retry_at", c.retryAt).Warn("reference dataset unavailable")
		return nil
	}
	c.codes = codes
	c.loaded = true
	c.log.WithField("count", len(codes)).Info("reference codes loaded")
	return c.codes
}
