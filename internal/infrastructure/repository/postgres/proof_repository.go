package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
)

type ProofRepository struct {
	q querier
}

const proofColumns = `id, type, location_id, location_osm_id, location_osm_type, date, currency, owner,
file_path, mime_type, content_hash, price_count, prediction_count, created_at, updated_at`

func (r *ProofRepository) Create(ctx context.Context, proof *domain.Proof) error {
	err := r.q.QueryRowContext(ctx, `
INSERT INTO proofs (
	type, location_id, location_osm_id, location_osm_type, date, currency, owner,
	file_path, mime_type, content_hash, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id
`,
		string(proof.Type), proof.Location.LocationID, proof.Location.OSMID, proof.Location.OSMType,
		proof.Date, proof.Currency, proof.Owner,
		proof.FilePath, proof.MimeType, proof.ContentHash, proof.CreatedAt, proof.UpdatedAt,
	).Scan(&proof.ID)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

func (r *ProofRepository) GetByID(ctx context.Context, id int64) (*domain.Proof, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+proofColumns+` FROM proofs WHERE id = $1`, id)
	proof, err := scanProof(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProofNotFound, "get proof", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan proof: %w", err)
	}
	return proof, nil
}

func (r *ProofRepository) FindByUploadKey(ctx context.Context, owner *string, contentHash string, proofType domain.ProofType, location domain.LocationRef, date *time.Time) (*domain.Proof, error) {
	row := r.q.QueryRowContext(ctx, `
SELECT `+proofColumns+`
FROM proofs
WHERE owner IS NOT DISTINCT FROM $1
  AND content_hash = $2
  AND type = $3
  AND location_id IS NOT DISTINCT FROM $4
  AND location_osm_id IS NOT DISTINCT FROM $5
  AND location_osm_type IS NOT DISTINCT FROM $6
  AND date IS NOT DISTINCT FROM $7
ORDER BY id
LIMIT 1
`, owner, contentHash, string(proofType), location.LocationID, location.OSMID, location.OSMType, date)

	proof, err := scanProof(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProofNotFound, "find proof by upload key", errors.New("no match"))
		}
		return nil, fmt.Errorf("scan proof: %w", err)
	}
	return proof, nil
}

func (r *ProofRepository) FindDuplicates(ctx context.Context, ref *domain.Proof, md5Check bool) ([]domain.Proof, error) {
	query := `
SELECT ` + proofColumns + `
FROM proofs
WHERE id <> $1
  AND owner IS NOT DISTINCT FROM $2
  AND date IS NOT DISTINCT FROM $3
  AND type = $4
  AND location_id IS NOT DISTINCT FROM $5
`
	args := []any{ref.ID, ref.Owner, ref.Date, string(ref.Type), ref.Location.LocationID}
	if md5Check {
		query += ` AND content_hash = $6`
		args = append(args, ref.ContentHash)
	}
	query += ` ORDER BY id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query duplicate proofs: %w", err)
	}
	defer rows.Close()

	var proofs []domain.Proof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		proofs = append(proofs, *proof)
	}
	return proofs, rows.Err()
}

func (r *ProofRepository) ListUnprocessed(ctx context.Context, afterID int64, limit int) ([]domain.Proof, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT `+proofColumns+`
FROM proofs
WHERE id > $1
  AND prediction_count = 0
  AND type IN ('PRICE_TAG', 'RECEIPT')
ORDER BY id
LIMIT $2
`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed proofs: %w", err)
	}
	defer rows.Close()

	var proofs []domain.Proof
	for rows.Next() {
		proof, err := scanProof(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		proofs = append(proofs, *proof)
	}
	return proofs, rows.Err()
}

func (r *ProofRepository) Update(ctx context.Context, proof *domain.Proof) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE proofs
SET location_id = $2, location_osm_id = $3, location_osm_type = $4,
    date = $5, currency = $6, updated_at = $7
WHERE id = $1
`, proof.ID, proof.Location.LocationID, proof.Location.OSMID, proof.Location.OSMType,
		proof.Date, proof.Currency, proof.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update proof: %w", err)
	}
	return requireRow(res, domain.ErrProofNotFound, "update proof")
}

func (r *ProofRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM proofs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete proof: %w", err)
	}
	return requireRow(res, domain.ErrProofNotFound, "delete proof")
}

func (r *ProofRepository) AdjustPriceCount(ctx context.Context, id int64, delta int) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE proofs SET price_count = GREATEST(price_count + $2, 0) WHERE id = $1
`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust proof price_count: %w", err)
	}
	return requireRow(res, domain.ErrProofNotFound, "adjust proof price_count")
}

func (r *ProofRepository) AdjustPredictionCount(ctx context.Context, id int64, delta int) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE proofs SET prediction_count = GREATEST(prediction_count + $2, 0) WHERE id = $1
`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust proof prediction_count: %w", err)
	}
	return requireRow(res, domain.ErrProofNotFound, "adjust proof prediction_count")
}

func (r *ProofRepository) RecountAll(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
UPDATE proofs p SET
	price_count = (SELECT COUNT(*) FROM prices WHERE proof_id = p.id),
	prediction_count = (SELECT COUNT(*) FROM proof_predictions WHERE proof_id = p.id)
`)
	if err != nil {
		return fmt.Errorf("recount proofs: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProof(row rowScanner) (*domain.Proof, error) {
	var proof domain.Proof
	var proofType string
	err := row.Scan(
		&proof.ID, &proofType,
		&proof.Location.LocationID, &proof.Location.OSMID, &proof.Location.OSMType,
		&proof.Date, &proof.Currency, &proof.Owner,
		&proof.FilePath, &proof.MimeType, &proof.ContentHash,
		&proof.PriceCount, &proof.PredictionCount,
		&proof.CreatedAt, &proof.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	proof.Type = domain.ProofType(proofType)
	return &proof, nil
}

// requireRow converts a zero-row mutation into the entity's not-found kind.
func requireRow(res sql.Result, kind error, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, operation, errors.New("no rows affected"))
	}
	return nil
}
