package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const dossierLimit = 50

// Dossier is the customs file an invoice is attached to.
type Dossier struct {
	Num         string     `db:"m_ds_num" json:"num"`
	Date        *time.Time `db:"m_ds_date" json:"date,omitempty"`
	DumNum      *string    `db:"m_ds_ndum" json:"dumNum,omitempty"`
	Currency    *string    `db:"m_ds_devise" json:"currency,omitempty"`
	Rate        *float64   `db:"m_ds_cours" json:"rate,omitempty"`
	Status      *string    `db:"m_ds_statut" json:"status,omitempty"`
	Incoterm    *string    `db:"m_ds_inco" json:"incoterm,omitempty"`
	Origin      *string    `db:"m_ds_orig" json:"origin,omitempty"`
	Vessel      *string    `db:"m_ds_navire" json:"vessel,omitempty"`
	Container   *string    `db:"m_ds_cnt" json:"container,omitempty"`
	Manifest    *string    `db:"m_ds_nummanifeste" json:"manifest,omitempty"`
	NetWeight   *float64   `db:"m_ds_pnet" json:"netWeight,omitempty"`
	GrossWeight *float64   `db:"m_ds_pbrut" json:"grossWeight,omitempty"`
	Packages    *int32     `db:"m_ds_ncolis" json:"packages,omitempty"`
	Freight     *float64   `db:"m_ds_mtfret" json:"freight,omitempty"`
	ClientCode  *string    `db:"m_ds_codeclient" json:"clientCode,omitempty"`
	Designation *string    `db:"m_ds_designation" json:"designation,omitempty"`
}

// DossierStore reads the m_dossier table.
type DossierStore struct {
	q Querier
}

// NewDossierStore creates a DossierStore.
func NewDossierStore(q Querier) *DossierStore {
	return &DossierStore{q: q}
}

// List returns up to 50 dossier numbers starting with prefix, newest first.
func (s *DossierStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT m_ds_num FROM m_dossier
		WHERE m_ds_num LIKE $1 AND m_ds_num IS NOT NULL
		ORDER BY m_ds_num DESC
		LIMIT $2
	`, prefix+"%", dossierLimit)
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	nums, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	return nums, nil
}

// Get returns the dossier numbered num.
func (s *DossierStore) Get(ctx context.Context, num string) (*Dossier, error) {
	rows, err := s.q.Query(ctx, `
		SELECT m_ds_num, m_ds_date, m_ds_ndum, m_ds_devise, m_ds_cours, m_ds_statut, m_ds_inco,
		       m_ds_orig, m_ds_navire, m_ds_cnt, m_ds_nummanifeste, m_ds_pnet, m_ds_pbrut,
		       m_ds_ncolis, m_ds_mtfret, m_ds_codeclient, m_ds_designation
		FROM m_dossier
		WHERE m_ds_num = $1
	`, num)
	if err != nil {
		return nil, fmt.Errorf("get dossier: %w", err)
	}
	d, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Dossier])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dossier: %w", err)
	}
	return d, nil
}
