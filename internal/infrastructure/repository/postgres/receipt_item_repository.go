package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type ReceiptItemRepository struct {
	q querier
}

const receiptItemColumns = `id, proof_id, price_id, item_order, predicted_data, status, schema_version, created_at, updated_at`

func (r *ReceiptItemRepository) Create(ctx context.Context, item *domain.ReceiptItem) error {
	data := item.PredictedData
	if len(data) == 0 {
		data = []byte(`{}`)
	}

	err := r.q.QueryRowContext(ctx, `
INSERT INTO receipt_items (
	proof_id, price_id, item_order, predicted_data, status, schema_version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		item.ProofID, item.PriceID, item.Order, []byte(data), statusValue(item.Status),
		item.SchemaVersion, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("insert receipt item: %w", err)
	}
	return nil
}

func (r *ReceiptItemRepository) GetByID(ctx context.Context, id int64) (*domain.ReceiptItem, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+receiptItemColumns+` FROM receipt_items WHERE id = $1`, id)
	item, err := scanReceiptItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrReceiptItemNotFound, "get receipt item", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan receipt item: %w", err)
	}
	return item, nil
}

func (r *ReceiptItemRepository) Update(ctx context.Context, item *domain.ReceiptItem) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE receipt_items
SET price_id = $2, status = $3, predicted_data = $4, updated_at = $5
WHERE id = $1
`, item.ID, item.PriceID, statusValue(item.Status), []byte(item.PredictedData), item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update receipt item: %w", err)
	}
	return requireRow(res, domain.ErrReceiptItemNotFound, "update receipt item")
}

func (r *ReceiptItemRepository) ListByProof(ctx context.Context, proofID int64) ([]domain.ReceiptItem, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+receiptItemColumns+` FROM receipt_items WHERE proof_id = $1 ORDER BY item_order
`, proofID)
	if err != nil {
		return nil, fmt.Errorf("query receipt items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReceiptItem
	for rows.Next() {
		item, err := scanReceiptItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *ReceiptItemRepository) UnlinkByPrice(ctx context.Context, priceID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE receipt_items SET price_id = NULL, status = NULL WHERE price_id = $1
`, priceID)
	if err != nil {
		return 0, fmt.Errorf("unlink receipt items: %w", err)
	}
	return res.RowsAffected()
}

func (r *ReceiptItemRepository) DeleteUnlinked(ctx context.Context, proofID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
DELETE FROM receipt_items WHERE proof_id = $1 AND price_id IS NULL
`, proofID)
	if err != nil {
		return 0, fmt.Errorf("delete unlinked receipt items: %w", err)
	}
	return res.RowsAffected()
}

func scanReceiptItem(row rowScanner) (*domain.ReceiptItem, error) {
	var item domain.ReceiptItem
	var status *int
	var data []byte

	err := row.Scan(
		&item.ID, &item.ProofID, &item.PriceID, &item.Order, &data,
		&status, &item.SchemaVersion, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.PredictedData = data
	if status != nil {
		s := domain.TagStatus(*status)
		item.Status = &s
	}
	return &item, nil
}
