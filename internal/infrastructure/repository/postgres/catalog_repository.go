package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type LocationRepository struct {
	q querier
}

func (r *LocationRepository) GetByID(ctx context.Context, id int64) (*domain.Location, error) {
	var loc domain.Location
	err := r.q.QueryRowContext(ctx, `
SELECT id, osm_id, osm_type, website_url, price_count FROM locations WHERE id = $1
`, id).Scan(&loc.ID, &loc.OSMID, &loc.OSMType, &loc.WebsiteURL, &loc.PriceCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrLocationNotFound, "get location", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan location: %w", err)
	}
	return &loc, nil
}

func (r *LocationRepository) AdjustPriceCount(ctx context.Context, id int64, delta int) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE locations SET price_count = GREATEST(price_count + $2, 0) WHERE id = $1
`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust location price count: %w", err)
	}
	return requireRow(res, domain.ErrLocationNotFound, "adjust location price count")
}

func (r *LocationRepository) RecountAll(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE locations l SET price_count = (
	SELECT COUNT(*) FROM prices p WHERE p.location_id = l.id
)
`)
	if err != nil {
		return fmt.Errorf("recount location price counts: %w", err)
	}
	return nil
}

type ProductRepository struct {
	q querier
}

func (r *ProductRepository) Exists(ctx context.Context, code string) (bool, error) {
	var found bool
	err := r.q.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM products WHERE code = $1)
`, code).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return found, nil
}

func (r *ProductRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT code FROM products ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query product codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan product code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// AdjustPriceCount upserts so counting a price against a code not yet in the
// catalog creates the catalog row instead of silently dropping the count.
func (r *ProductRepository) AdjustPriceCount(ctx context.Context, code string, delta int) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO products (code, price_count) VALUES ($1, GREATEST($2, 0))
ON CONFLICT (code) DO UPDATE SET price_count = GREATEST(products.price_count + $2, 0)
`, code, delta)
	if err != nil {
		return fmt.Errorf("adjust product price count: %w", err)
	}
	return nil
}

func (r *ProductRepository) RecountAll(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE products pr SET price_count = (
	SELECT COUNT(*) FROM prices p WHERE p.product_code = pr.code
)
`)
	if err != nil {
		return fmt.Errorf("recount product price counts: %w", err)
	}
	return nil
}

type UserRepository struct {
	q querier
}

func (r *UserRepository) AdjustPriceCount(ctx context.Context, userID string, delta int) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO users (user_id, price_count) VALUES ($1, GREATEST($2, 0))
ON CONFLICT (user_id) DO UPDATE SET price_count = GREATEST(users.price_count + $2, 0)
`, userID, delta)
	if err != nil {
		return fmt.Errorf("adjust user price count: %w", err)
	}
	return nil
}

func (r *UserRepository) RecountAll(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE users u SET price_count = (
	SELECT COUNT(*) FROM prices p WHERE p.owner = u.user_id
)
`)
	if err != nil {
		return fmt.Errorf("recount user price counts: %w", err)
	}
	return nil
}
