package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const referenceTimeout = 10 * time.Second

// ReferenceStore searches the m_ngp classification table.
type ReferenceStore struct {
	q   Querier
	log *logrus.Entry
}

// NewReferenceStore creates a ReferenceStore.
func NewReferenceStore(q Querier, log *logrus.Entry) *ReferenceStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReferenceStore{q: q, log: log.WithField("component", "references")}
}

// Search returns up to limit codes whose code or designation contains term.
// An empty term lists the table in code order.
func (s *ReferenceStore) Search(ctx context.Context, term string, limit int) ([]models.ReferenceCode, error) {
	ctx, cancel := context.WithTimeout(ctx, referenceTimeout)
	defer cancel()

	query := `SELECT DISTINCT code_ngp, COALESCE(designation, '') FROM m_ngp ORDER BY code_ngp LIMIT $1`
	args := []any{limit}
	if term != "" {
		query = `SELECT DISTINCT code_ngp, COALESCE(designation, '') FROM m_ngp
			WHERE code_ngp LIKE $1 OR designation ILIKE $1
			ORDER BY code_ngp LIMIT $2`
		args = []any{"%" + term + "%", limit}
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	defer rows.Close()

	var codes []models.ReferenceCode
	for rows.Next() {
		var c models.ReferenceCode
		if err := rows.Scan(&c.Code, &c.Designation); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	s.log.WithFields(logrus.Fields{"term": term, "count": len(codes)}).Debug("reference search")
	return codes, nil
}
