package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type PriceRepository struct {
	q querier
}

const priceColumns = `id, product_code, category_tag, labels_tags, origins_tags, price_per,
amount, is_discounted, amount_without_discount, discount_type, currency, date,
location_id, location_osm_id, location_osm_type, proof_id, owner, receipt_quantity,
duplicate_of, created_at, updated_at`

func (r *PriceRepository) Create(ctx context.Context, price *domain.Price) error {
	labelsJSON, originsJSON, err := marshalTagLists(price)
	if err != nil {
		return err
	}

	err = r.q.QueryRowContext(ctx, `
INSERT INTO prices (
	product_code, category_tag, labels_tags, origins_tags, price_per,
	amount, is_discounted, amount_without_discount, discount_type, currency, date,
	location_id, location_osm_id, location_osm_type, proof_id, owner, receipt_quantity,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id
`,
		price.ProductCode, price.CategoryTag, labelsJSON, originsJSON, pricePerValue(price.PricePer),
		price.Amount, price.IsDiscounted, price.AmountWithoutDiscount, discountTypeValue(price.DiscountType),
		price.Currency, price.Date,
		price.Location.LocationID, price.Location.OSMID, price.Location.OSMType,
		price.ProofID, price.Owner, price.ReceiptQuantity,
		price.CreatedAt, price.UpdatedAt,
	).Scan(&price.ID)
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

func (r *PriceRepository) GetByID(ctx context.Context, id int64) (*domain.Price, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM prices WHERE id = $1`, id)
	price, err := scanPrice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPriceNotFound, "get price", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan price: %w", err)
	}
	return price, nil
}

func (r *PriceRepository) Update(ctx context.Context, price *domain.Price) error {
	labelsJSON, originsJSON, err := marshalTagLists(price)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
UPDATE prices
SET labels_tags = $2, origins_tags = $3, price_per = $4,
    amount = $5, is_discounted = $6, amount_without_discount = $7, discount_type = $8,
    currency = $9, date = $10,
    location_id = $11, location_osm_id = $12, location_osm_type = $13,
    receipt_quantity = $14, updated_at = $15
WHERE id = $1
`,
		price.ID, labelsJSON, originsJSON, pricePerValue(price.PricePer),
		price.Amount, price.IsDiscounted, price.AmountWithoutDiscount, discountTypeValue(price.DiscountType),
		price.Currency, price.Date,
		price.Location.LocationID, price.Location.OSMID, price.Location.OSMType,
		price.ReceiptQuantity, price.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	return requireRow(res, domain.ErrPriceNotFound, "update price")
}

func (r *PriceRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM prices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete price: %w", err)
	}
	return requireRow(res, domain.ErrPriceNotFound, "delete price")
}

func (r *PriceRepository) ListByProof(ctx context.Context, proofID int64) ([]domain.Price, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+priceColumns+` FROM prices WHERE proof_id = $1 ORDER BY id
`, proofID)
	if err != nil {
		return nil, fmt.Errorf("query proof prices: %w", err)
	}
	defer rows.Close()
	return collectPrices(rows)
}

// FindCanonical matches the full duplicate key: everything about the
// observation except who reported it and on which proof. The earliest row
// (lowest id) is the canonical record.
func (r *PriceRepository) FindCanonical(ctx context.Context, candidate *domain.Price) (*domain.Price, error) {
	labelsJSON, originsJSON, err := marshalTagLists(candidate)
	if err != nil {
		return nil, err
	}

	row := r.q.QueryRowContext(ctx, `
SELECT `+priceColumns+`
FROM prices
WHERE id <> $1
  AND product_code IS NOT DISTINCT FROM $2
  AND category_tag IS NOT DISTINCT FROM $3
  AND labels_tags = $4
  AND origins_tags = $5
  AND price_per IS NOT DISTINCT FROM $6
  AND amount = $7
  AND is_discounted = $8
  AND amount_without_discount IS NOT DISTINCT FROM $9
  AND discount_type IS NOT DISTINCT FROM $10
  AND currency = $11
  AND date = $12
  AND location_id IS NOT DISTINCT FROM $13
ORDER BY id
LIMIT 1
`,
		candidate.ID, candidate.ProductCode, candidate.CategoryTag, labelsJSON, originsJSON,
		pricePerValue(candidate.PricePer), candidate.Amount, candidate.IsDiscounted,
		candidate.AmountWithoutDiscount, discountTypeValue(candidate.DiscountType),
		candidate.Currency, candidate.Date, candidate.Location.LocationID,
	)

	price, err := scanPrice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan canonical price: %w", err)
	}
	return price, nil
}

func (r *PriceRepository) SetDuplicateOf(ctx context.Context, id int64, canonicalID *int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE prices SET duplicate_of = $2 WHERE id = $1`, id, canonicalID)
	if err != nil {
		return fmt.Errorf("set duplicate_of: %w", err)
	}
	return requireRow(res, domain.ErrPriceNotFound, "set duplicate_of")
}

func (r *PriceRepository) ClearDuplicateOf(ctx context.Context, canonicalID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE prices SET duplicate_of = NULL WHERE duplicate_of = $1`, canonicalID)
	if err != nil {
		return 0, fmt.Errorf("clear duplicate_of: %w", err)
	}
	return res.RowsAffected()
}

func (r *PriceRepository) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Price, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+priceColumns+` FROM prices WHERE id > $1 ORDER BY id LIMIT $2
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("page prices: %w", err)
	}
	defer rows.Close()
	return collectPrices(rows)
}

func (r *PriceRepository) MoveToProof(ctx context.Context, fromProofID, toProofID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE prices SET proof_id = $2 WHERE proof_id = $1`, fromProofID, toProofID)
	if err != nil {
		return 0, fmt.Errorf("move prices to proof: %w", err)
	}
	return res.RowsAffected()
}

func (r *PriceRepository) FindProductCodeByName(ctx context.Context, location domain.LocationRef, name string) (*string, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT p.product_code
FROM prices p
JOIN products pr ON pr.code = p.product_code
WHERE pr.name = $1
  AND p.location_id IS NOT DISTINCT FROM $2
  AND p.product_code IS NOT NULL
ORDER BY p.created_at DESC
LIMIT 1
`, name, location.LocationID)

	var code string
	if err := row.Scan(&code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan product code hint: %w", err)
	}
	return &code, nil
}

func scanPrice(row rowScanner) (*domain.Price, error) {
	var price domain.Price
	var labelsRaw, originsRaw []byte
	var pricePer, discountType *string

	err := row.Scan(
		&price.ID, &price.ProductCode, &price.CategoryTag, &labelsRaw, &originsRaw, &pricePer,
		&price.Amount, &price.IsDiscounted, &price.AmountWithoutDiscount, &discountType,
		&price.Currency, &price.Date,
		&price.Location.LocationID, &price.Location.OSMID, &price.Location.OSMType,
		&price.ProofID, &price.Owner, &price.ReceiptQuantity,
		&price.DuplicateOf, &price.CreatedAt, &price.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(labelsRaw, &price.LabelsTags); err != nil {
		return nil, fmt.Errorf("unmarshal labels_tags: %w", err)
	}
	if err := json.Unmarshal(originsRaw, &price.OriginsTags); err != nil {
		return nil, fmt.Errorf("unmarshal origins_tags: %w", err)
	}
	if pricePer != nil {
		pp := domain.PricePer(*pricePer)
		price.PricePer = &pp
	}
	if discountType != nil {
		dt := domain.DiscountType(*discountType)
		price.DiscountType = &dt
	}
	return &price, nil
}

func collectPrices(rows *sql.Rows) ([]domain.Price, error) {
	var prices []domain.Price
	for rows.Next() {
		price, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, *price)
	}
	return prices, rows.Err()
}

func marshalTagLists(price *domain.Price) ([]byte, []byte, error) {
	labels := price.LabelsTags
	if labels == nil {
		labels = []string{}
	}
	origins := price.OriginsTags
	if origins == nil {
		origins = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal labels_tags: %w", err)
	}
	originsJSON, err := json.Marshal(origins)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal origins_tags: %w", err)
	}
	return labelsJSON, originsJSON, nil
}

func pricePerValue(p *domain.PricePer) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func discountTypeValue(d *domain.DiscountType) *string {
	if d == nil {
		return nil
	}
	s := string(*d)
	return &s
}
