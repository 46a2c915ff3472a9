package ports

import (
	"context"
	"io"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
)

// ProofRepository persists and reads proof rows.
type ProofRepository interface {
	Create(ctx context.Context, proof *domain.Proof) error
	GetByID(ctx context.Context, id int64) (*domain.Proof, error)
	// FindByUploadKey is the idempotent-upload fast path: same owner,
	// content hash, type, location and date means the same upload.
	FindByUploadKey(ctx context.Context, owner *string, contentHash string, proofType domain.ProofType, location domain.LocationRef, date *time.Time) (*domain.Proof, error)
	// FindDuplicates returns other proofs sharing ref's owner, date, type
	// and location; when md5Check is set the content hash must match too.
	FindDuplicates(ctx context.Context, ref *domain.Proof, md5Check bool) ([]domain.Proof, error)
	// ListUnprocessed pages through ML-eligible proofs that never received
	// a prediction, for the redispatch backstop.
	ListUnprocessed(ctx context.Context, afterID int64, limit int) ([]domain.Proof, error)
	Update(ctx context.Context, proof *domain.Proof) error
	Delete(ctx context.Context, id int64) error
	AdjustPriceCount(ctx context.Context, id int64, delta int) error
	AdjustPredictionCount(ctx context.Context, id int64, delta int) error
	// RecountAll recomputes every proof's denormalized counters from the
	// source rows. Idempotent; the repair tool for counter drift.
	RecountAll(ctx context.Context) error
}

// PriceRepository persists and reads price rows.
type PriceRepository interface {
	Create(ctx context.Context, price *domain.Price) error
	GetByID(ctx context.Context, id int64) (*domain.Price, error)
	Update(ctx context.Context, price *domain.Price) error
	Delete(ctx context.Context, id int64) error
	ListByProof(ctx context.Context, proofID int64) ([]domain.Price, error)
	// FindCanonical returns the earliest-created price sharing every field
	// of the duplicate key with candidate (excluding candidate itself), or
	// nil when the observation is new.
	FindCanonical(ctx context.Context, candidate *domain.Price) (*domain.Price, error)
	SetDuplicateOf(ctx context.Context, id int64, canonicalID *int64) error
	// ClearDuplicateOf detaches every price pointing at canonicalID.
	ClearDuplicateOf(ctx context.Context, canonicalID int64) (int64, error)
	// ListAfter pages through prices in id order for batch sweeps.
	ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Price, error)
	// MoveToProof repoints every price of fromProofID at toProofID and
	// returns how many rows moved. Used by proof merging.
	MoveToProof(ctx context.Context, fromProofID, toProofID int64) (int64, error)
	// FindProductCodeByName returns the product code of an existing price
	// at the given location whose catalog product name matches name
	// exactly, or nil.
	FindProductCodeByName(ctx context.Context, location domain.LocationRef, name string) (*string, error)
}

// PriceTagRepository persists and reads detected price tag regions.
type PriceTagRepository interface {
	Create(ctx context.Context, tag *domain.PriceTag) error
	GetByID(ctx context.Context, id int64) (*domain.PriceTag, error)
	Update(ctx context.Context, tag *domain.PriceTag) error
	Delete(ctx context.Context, id int64) error
	ListByProof(ctx context.Context, proofID int64) ([]domain.PriceTag, error)
	// UnlinkByPrice clears price references on every tag linked to priceID
	// and resets their status to unknown. Returns affected row count.
	UnlinkByPrice(ctx context.Context, priceID int64) (int64, error)
	// DeleteGeneratedUnlinked removes system-created tags of a proof that
	// never got a price. Used when regenerating detection output.
	DeleteGeneratedUnlinked(ctx context.Context, proofID int64) (int64, error)
	AdjustPredictionCount(ctx context.Context, id int64, delta int) error
	RecountAll(ctx context.Context) error
}

// ReceiptItemRepository persists and reads parsed receipt lines.
type ReceiptItemRepository interface {
	Create(ctx context.Context, item *domain.ReceiptItem) error
	GetByID(ctx context.Context, id int64) (*domain.ReceiptItem, error)
	Update(ctx context.Context, item *domain.ReceiptItem) error
	ListByProof(ctx context.Context, proofID int64) ([]domain.ReceiptItem, error)
	UnlinkByPrice(ctx context.Context, priceID int64) (int64, error)
	DeleteUnlinked(ctx context.Context, proofID int64) (int64, error)
}

// PredictionRepository persists immutable ML outputs for proofs and tags.
type PredictionRepository interface {
	CreateProofPrediction(ctx context.Context, p *domain.ProofPrediction) error
	GetProofPrediction(ctx context.Context, proofID int64, modelName string) (*domain.ProofPrediction, error)
	ListProofPredictions(ctx context.Context, proofID int64) ([]domain.ProofPrediction, error)
	DeleteProofPrediction(ctx context.Context, id int64) error
	UpdateProofPredictionData(ctx context.Context, id int64, data []byte) error

	CreatePriceTagPrediction(ctx context.Context, p *domain.PriceTagPrediction) error
	GetPriceTagPrediction(ctx context.Context, priceTagID int64, modelName string) (*domain.PriceTagPrediction, error)
	ListPriceTagPredictions(ctx context.Context, priceTagID int64) ([]domain.PriceTagPrediction, error)
	UpdatePriceTagPredictionData(ctx context.Context, id int64, data []byte) error
}

// LocationRepository reads location rows and maintains their counters.
type LocationRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Location, error)
	AdjustPriceCount(ctx context.Context, id int64, delta int) error
	RecountAll(ctx context.Context) error
}

// ProductRepository reads the product catalog and maintains its counters.
type ProductRepository interface {
	Exists(ctx context.Context, code string) (bool, error)
	// ListCodes returns catalog codes for barcode-repair ranking.
	ListCodes(ctx context.Context) ([]string, error)
	AdjustPriceCount(ctx context.Context, code string, delta int) error
	RecountAll(ctx context.Context) error
}

// UserRepository maintains per-user counters.
type UserRepository interface {
	AdjustPriceCount(ctx context.Context, userID string, delta int) error
	RecountAll(ctx context.Context) error
}

// Repositories groups every repository bound to one transaction (or to the
// shared pool outside one).
type Repositories struct {
	Proofs       ProofRepository
	Prices       PriceRepository
	PriceTags    PriceTagRepository
	ReceiptItems ReceiptItemRepository
	Predictions  PredictionRepository
	Locations    LocationRepository
	Products     ProductRepository
	Users        UserRepository
}

// Store hands out repositories and runs functions inside a single
// transaction. A crash mid-sequence leaves either the full effect or none.
type Store interface {
	Repos() Repositories
	Within(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}

// TaxonomyDomain selects which taxonomy a value is resolved against.
type TaxonomyDomain string

const (
	TaxonomyCategory TaxonomyDomain = "category"
	TaxonomyLabel    TaxonomyDomain = "label"
	TaxonomyOrigin   TaxonomyDomain = "origin"
)

// TaxonomyResolver maps a free-text, possibly localized tag to its
// canonical taxonomy id. Returns domain.ErrUnknownLanguagePrefix when the
// value is not language-prefixed or the prefix is unknown.
type TaxonomyResolver interface {
	Resolve(ctx context.Context, taxonomy TaxonomyDomain, value string) (string, error)
}

// ObjectDetector finds candidate price tag regions on a proof image.
type ObjectDetector interface {
	Detect(ctx context.Context, image io.Reader) ([]domain.DetectedBox, string, error)
}

// StructuredExtractor turns an image (crop or full receipt) into structured
// fields using the extraction model.
type StructuredExtractor interface {
	ExtractPriceTag(ctx context.Context, image io.Reader) (*domain.ExtractedPriceTag, string, error)
	ExtractReceipt(ctx context.Context, image io.Reader) ([]domain.ExtractedReceiptItem, string, error)
}

// BarcodeService validates and canonicalizes product barcodes.
type BarcodeService interface {
	IsValidCheckDigit(code string) bool
	Normalize(code string) string
}

// BarcodeRepairer fixes invalid extracted barcodes. It returns either a
// repaired canonical code, or up to ten catalog suggestions ranked by edit
// distance for manual disambiguation. It never links anything itself.
type BarcodeRepairer interface {
	Repair(ctx context.Context, raw string) (string, []domain.BarcodeSuggestion, error)
}

// ContentStore reads and writes proof image bytes.
type ContentStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// DispatchQueue carries ML work to background workers. Deliveries can
// repeat, so every consumer must be idempotent.
type DispatchQueue interface {
	PublishProofUploaded(ctx context.Context, proofID int64) error
	SubscribeProofUploaded(ctx context.Context, handler func(context.Context, int64) error) error
}
