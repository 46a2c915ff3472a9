package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type PriceTagRepository struct {
	q querier
}

const priceTagColumns = `id, proof_id, y_min, x_min, y_max, x_max, price_id, status,
created_by, updated_by, tags, prediction_count, created_at, updated_at`

func (r *PriceTagRepository) Create(ctx context.Context, tag *domain.PriceTag) error {
	tagsJSON, err := marshalStringList(tag.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	err = r.q.QueryRowContext(ctx, `
INSERT INTO price_tags (
	proof_id, y_min, x_min, y_max, x_max, price_id, status,
	created_by, updated_by, tags, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id
`,
		tag.ProofID, tag.BoundingBox.YMin(), tag.BoundingBox.XMin(), tag.BoundingBox.YMax(), tag.BoundingBox.XMax(),
		tag.PriceID, statusValue(tag.Status), tag.CreatedBy, tag.UpdatedBy, tagsJSON,
		tag.CreatedAt, tag.UpdatedAt,
	).Scan(&tag.ID)
	if err != nil {
		return fmt.Errorf("insert price tag: %w", err)
	}
	return nil
}

func (r *PriceTagRepository) GetByID(ctx context.Context, id int64) (*domain.PriceTag, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+priceTagColumns+` FROM price_tags WHERE id = $1`, id)
	tag, err := scanPriceTag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPriceTagNotFound, "get price tag", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan price tag: %w", err)
	}
	return tag, nil
}

func (r *PriceTagRepository) Update(ctx context.Context, tag *domain.PriceTag) error {
	tagsJSON, err := marshalStringList(tag.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	res, err := r.q.ExecContext(ctx, `
UPDATE price_tags
SET y_min = $2, x_min = $3, y_max = $4, x_max = $5,
    price_id = $6, status = $7, updated_by = $8, tags = $9, updated_at = $10
WHERE id = $1
`,
		tag.ID, tag.BoundingBox.YMin(), tag.BoundingBox.XMin(), tag.BoundingBox.YMax(), tag.BoundingBox.XMax(),
		tag.PriceID, statusValue(tag.Status), tag.UpdatedBy, tagsJSON, tag.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update price tag: %w", err)
	}
	return requireRow(res, domain.ErrPriceTagNotFound, "update price tag")
}

func (r *PriceTagRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM price_tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete price tag: %w", err)
	}
	return requireRow(res, domain.ErrPriceTagNotFound, "delete price tag")
}

func (r *PriceTagRepository) ListByProof(ctx context.Context, proofID int64) ([]domain.PriceTag, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+priceTagColumns+` FROM price_tags WHERE proof_id = $1 ORDER BY id
`, proofID)
	if err != nil {
		return nil, fmt.Errorf("query proof price tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.PriceTag
	for rows.Next() {
		tag, err := scanPriceTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price tag: %w", err)
		}
		tags = append(tags, *tag)
	}
	return tags, rows.Err()
}

func (r *PriceTagRepository) UnlinkByPrice(ctx context.Context, priceID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE price_tags SET price_id = NULL, status = NULL WHERE price_id = $1
`, priceID)
	if err != nil {
		return 0, fmt.Errorf("unlink price tags: %w", err)
	}
	return res.RowsAffected()
}

func (r *PriceTagRepository) DeleteGeneratedUnlinked(ctx context.Context, proofID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
DELETE FROM price_tags
WHERE proof_id = $1 AND created_by IS NULL AND price_id IS NULL
`, proofID)
	if err != nil {
		return 0, fmt.Errorf("delete generated price tags: %w", err)
	}
	return res.RowsAffected()
}

func (r *PriceTagRepository) AdjustPredictionCount(ctx context.Context, id int64, delta int) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE price_tags SET prediction_count = GREATEST(prediction_count + $2, 0) WHERE id = $1
`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust price tag prediction_count: %w", err)
	}
	return requireRow(res, domain.ErrPriceTagNotFound, "adjust price tag prediction_count")
}

func (r *PriceTagRepository) RecountAll(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE price_tags t SET
	prediction_count = (SELECT COUNT(*) FROM price_tag_predictions WHERE price_tag_id = t.id)
`)
	if err != nil {
		return fmt.Errorf("recount price tags: %w", err)
	}
	return nil
}

func scanPriceTag(row rowScanner) (*domain.PriceTag, error) {
	var tag domain.PriceTag
	var status *int
	var tagsRaw []byte

	err := row.Scan(
		&tag.ID, &tag.ProofID,
		&tag.BoundingBox[0], &tag.BoundingBox[1], &tag.BoundingBox[2], &tag.BoundingBox[3],
		&tag.PriceID, &status, &tag.CreatedBy, &tag.UpdatedBy, &tagsRaw,
		&tag.PredictionCount, &tag.CreatedAt, &tag.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if status != nil {
		s := domain.TagStatus(*status)
		tag.Status = &s
	}
	if err := json.Unmarshal(tagsRaw, &tag.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &tag, nil
}

func statusValue(s *domain.TagStatus) *int {
	if s == nil {
		return nil
	}
	v := int(*s)
	return &v
}

func marshalStringList(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}
