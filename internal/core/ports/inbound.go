package ports

import (
	"context"
	"io"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
)

// ProofUpload is the inbound payload for proof submission.
type ProofUpload struct {
	Type     domain.ProofType
	Location domain.LocationRef
	Date     *time.Time
	Currency *string
	Owner    *string
	Filename string
	MimeType string
	Body     io.Reader
}

// ProofIngestor is the inbound contract for proof upload orchestration.
// Upload is idempotent: re-submitting identical evidence returns the
// existing proof.
type ProofIngestor interface {
	Upload(ctx context.Context, upload ProofUpload) (*domain.Proof, bool, error)
}

// PriceSubmitter is the inbound contract for price submission and lifecycle.
type PriceSubmitter interface {
	Create(ctx context.Context, price *domain.Price) (*domain.Price, error)
	Delete(ctx context.Context, id int64, actor *string) error
}

// IngestOptions tune one prediction-ingestion run.
type IngestOptions struct {
	// Overwrite regenerates output that already exists for the model.
	Overwrite bool
	// RunExtraction chains structured extraction onto freshly detected
	// price tags.
	RunExtraction bool
}

// ProofProcessor is the inbound contract for asynchronous ML processing of
// an uploaded proof.
type ProofProcessor interface {
	ProcessByID(ctx context.Context, proofID int64, opts IngestOptions) error
}

// MatchSweeper links predicted items to concrete prices for one proof.
type MatchSweeper interface {
	SweepPriceTags(ctx context.Context, proofID int64) (int, error)
	SweepReceiptItems(ctx context.Context, proofID int64) (int, error)
}

// MaintenanceRunner is the repair surface: duplicate recompute, proof
// merging and counter recount.
type MaintenanceRunner interface {
	RecomputeDuplicates(ctx context.Context) (int, error)
	MergeDuplicateProofs(ctx context.Context, referenceProofID int64, md5Check bool) (int, error)
	RedispatchUnprocessed(ctx context.Context) (int, error)
	Recount(ctx context.Context) error
}
