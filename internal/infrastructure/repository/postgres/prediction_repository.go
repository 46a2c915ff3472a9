package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type PredictionRepository struct {
	q querier
}

const proofPredictionColumns = `id, proof_id, type, model_name, model_version, schema_version, data, confidence, created_at`
const priceTagPredictionColumns = `id, price_tag_id, type, model_name, model_version, schema_version, data, confidence, created_at`

func (r *PredictionRepository) CreateProofPrediction(ctx context.Context, p *domain.ProofPrediction) error {
	err := r.q.QueryRowContext(ctx, `
INSERT INTO proof_predictions (
	proof_id, type, model_name, model_version, schema_version, data, confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		p.ProofID, string(p.Type), p.ModelName, p.ModelVersion, p.SchemaVersion,
		[]byte(p.Data), p.Confidence, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert proof prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) GetProofPrediction(ctx context.Context, proofID int64, modelName string) (*domain.ProofPrediction, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT `+proofPredictionColumns+`
FROM proof_predictions
WHERE proof_id = $1 AND model_name = $2
`, proofID, modelName)

	p, err := scanProofPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPredictionNotFound, "get proof prediction",
				fmt.Errorf("proof %d model %s", proofID, modelName))
		}
		return nil, fmt.Errorf("scan proof prediction: %w", err)
	}
	return p, nil
}

func (r *PredictionRepository) ListProofPredictions(ctx context.Context, proofID int64) ([]domain.ProofPrediction, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+proofPredictionColumns+` FROM proof_predictions WHERE proof_id = $1 ORDER BY id
`, proofID)
	if err != nil {
		return nil, fmt.Errorf("query proof predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.ProofPrediction
	for rows.Next() {
		p, err := scanProofPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proof prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

func (r *PredictionRepository) DeleteProofPrediction(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM proof_predictions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete proof prediction: %w", err)
	}
	return requireRow(res, domain.ErrPredictionNotFound, "delete proof prediction")
}

func (r *PredictionRepository) UpdateProofPredictionData(ctx context.Context, id int64, data []byte) error {
	res, err := r.q.ExecContext(ctx, `UPDATE proof_predictions SET data = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update proof prediction data: %w", err)
	}
	return requireRow(res, domain.ErrPredictionNotFound, "update proof prediction data")
}

func (r *PredictionRepository) CreatePriceTagPrediction(ctx context.Context, p *domain.PriceTagPrediction) error {
	err := r.q.QueryRowContext(ctx, `
INSERT INTO price_tag_predictions (
	price_tag_id, type, model_name, model_version, schema_version, data, confidence, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		p.PriceTagID, string(p.Type), p.ModelName, p.ModelVersion, p.SchemaVersion,
		[]byte(p.Data), p.Confidence, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert price tag prediction: %w", err)
	}
	return nil
}

func (r *PredictionRepository) GetPriceTagPrediction(ctx context.Context, priceTagID int64, modelName string) (*domain.PriceTagPrediction, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT `+priceTagPredictionColumns+`
FROM price_tag_predictions
WHERE price_tag_id = $1 AND model_name = $2
`, priceTagID, modelName)

	p, err := scanPriceTagPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPredictionNotFound, "get price tag prediction",
				fmt.Errorf("price tag %d model %s", priceTagID, modelName))
		}
		return nil, fmt.Errorf("scan price tag prediction: %w", err)
	}
	return p, nil
}

func (r *PredictionRepository) ListPriceTagPredictions(ctx context.Context, priceTagID int64) ([]domain.PriceTagPrediction, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+priceTagPredictionColumns+` FROM price_tag_predictions WHERE price_tag_id = $1 ORDER BY id
`, priceTagID)
	if err != nil {
		return nil, fmt.Errorf("query price tag predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.PriceTagPrediction
	for rows.Next() {
		p, err := scanPriceTagPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price tag prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}
	return predictions, rows.Err()
}

func (r *PredictionRepository) UpdatePriceTagPredictionData(ctx context.Context, id int64, data []byte) error {
	res, err := r.q.ExecContext(ctx, `UPDATE price_tag_predictions SET data = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update price tag prediction data: %w", err)
	}
	return requireRow(res, domain.ErrPredictionNotFound, "update price tag prediction data")
}

func scanProofPrediction(row rowScanner) (*domain.ProofPrediction, error) {
	var p domain.ProofPrediction
	var predictionType string
	var data []byte

	err := row.Scan(
		&p.ID, &p.ProofID, &predictionType, &p.ModelName, &p.ModelVersion,
		&p.SchemaVersion, &data, &p.Confidence, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PredictionType(predictionType)
	p.Data = data
	return &p, nil
}

func scanPriceTagPrediction(row rowScanner) (*domain.PriceTagPrediction, error) {
	var p domain.PriceTagPrediction
	var predictionType string
	var data []byte

	err := row.Scan(
		&p.ID, &p.PriceTagID, &predictionType, &p.ModelName, &p.ModelVersion,
		&p.SchemaVersion, &data, &p.Confidence, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = domain.PredictionType(predictionType)
	p.Data = data
	return &p, nil
}
