package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// StoredInvoice is a persisted record with its row metadata.
type StoredInvoice struct {
	ID        int64     `json:"id"`
	Dossier   string    `json:"dossier"`
	CreatedAt time.Time `json:"created_at"`
	models.InvoiceRecord
}

// InvoiceStore saves and reads reconciled invoices.
type InvoiceStore struct {
	q Querier
}

// NewInvoiceStore creates an InvoiceStore.
func NewInvoiceStore(q Querier) *InvoiceStore {
	return &InvoiceStore{q: q}
}

// Save inserts rec and its items in one transaction and returns the new id.
func (s *InvoiceStore) Save(ctx context.Context, rec models.InvoiceRecord, dossier string) (int64, error) {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (m_fe_num, m_fe_date, m_fe_devise, m_fe_pnet, m_fe_pbrute, m_fe_valdev, dossier_num)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id
	`, rec.Number, rec.Date, rec.Currency,
		rec.NetWeight.String(), rec.GrossWeight.String(), rec.TotalValue.String(), dossier,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}

	batch := &pgx.Batch{}
	for i, it := range rec.Items {
		batch.Queue(`
			INSERT INTO invoice_items (
				invoice_id, position, avecsanspaiment, m_fl_ngp, m_fl_art, m_fl_desig, m_fl_orig,
				quantity, m_fl_unite, m_fl_pnet, m_fl_pbrut, m_fl_valdev
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, id, i, it.PaymentFlag, it.ClassificationCode, it.ArticleCode, it.Description, it.OriginCountry,
			it.Quantity, it.Unit, it.NetWeight.String(), it.GrossWeight.String(), it.Value.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// List returns the most recent invoices without their items.
func (s *InvoiceStore) List(ctx context.Context, limit int) ([]StoredInvoice, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, COALESCE(dossier_num, ''), created_at, m_fe_num, m_fe_date, m_fe_devise,
		       m_fe_pnet::text, m_fe_pbrute::text, m_fe_valdev::text
		FROM invoices
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []StoredInvoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		inv.Items = []models.LineItem{}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// Get returns one invoice with its items in their original order.
func (s *InvoiceStore) Get(ctx context.Context, id int64) (*StoredInvoice, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, COALESCE(dossier_num, ''), created_at, m_fe_num, m_fe_date, m_fe_devise,
		       m_fe_pnet::text, m_fe_pbrute::text, m_fe_valdev::text
		FROM invoices
		WHERE id = $1
	`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, `
		SELECT avecsanspaiment, m_fl_ngp, m_fl_art, m_fl_desig, m_fl_orig, quantity, m_fl_unite,
		       m_fl_pnet::text, m_fl_pbrut::text, m_fl_valdev::text
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inv.Items = []models.LineItem{}
	for rows.Next() {
		var it models.LineItem
		var net, gross, value string
		if err := rows.Scan(&it.PaymentFlag, &it.ClassificationCode, &it.ArticleCode, &it.Description,
			&it.OriginCountry, &it.Quantity, &it.Unit, &net, &gross, &value); err != nil {
			return nil, err
		}
		if it.NetWeight, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("item net weight: %w", err)
		}
		if it.GrossWeight, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("item gross weight: %w", err)
		}
		if it.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("item value: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanInvoice(row pgx.Row) (StoredInvoice, error) {
	var inv StoredInvoice
	var net, gross, total string
	err := row.Scan(&inv.ID, &inv.Dossier, &inv.CreatedAt, &inv.Number, &inv.Date, &inv.Currency,
		&net, &gross, &total)
	if err != nil {
		return inv, err
	}
	if inv.NetWeight, err = decimal.NewFromString(net); err != nil {
		return inv, fmt.Errorf("net weight: %w", err)
	}
	if inv.GrossWeight, err = decimal.NewFromString(gross); err != nil {
		return inv, fmt.Errorf("gross weight: %w", err)
	}
	if inv.TotalValue, err = decimal.NewFromString(total); err != nil {
		return inv, fmt.Errorf("total value: %w", err)
	}
	return inv, nil
}
