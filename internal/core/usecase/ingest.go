package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// DefaultDetectionThreshold is the minimum score a detected box needs to
// become a price tag region.
const DefaultDetectionThreshold = 0.5

// IngestConfig names the models whose output the ingestor materializes.
// The (subject, model name) pair is the idempotence key: re-delivered
// queue messages and task retries re-run ingestion without duplicating rows.
type IngestConfig struct {
	DetectorModel      string
	ExtractorModel     string
	ReceiptModel       string
	DetectionThreshold float64
}

func (c IngestConfig) normalize() IngestConfig {
	out := c
	if out.DetectorModel == "" {
		out.DetectorModel = "price-tag-detection"
	}
	if out.ExtractorModel == "" {
		out.ExtractorModel = "price-tag-extraction"
	}
	if out.ReceiptModel == "" {
		out.ReceiptModel = "receipt-extraction"
	}
	if out.DetectionThreshold <= 0 || out.DetectionThreshold > 1 {
		out.DetectionThreshold = DefaultDetectionThreshold
	}
	return out
}

// IngestUseCase is the prediction ingestor: it turns raw ML payloads into
// proof predictions, price tag regions and receipt items. Model failures
// degrade to empty predictions so the owning transaction never dies on a
// flaky collaborator.
type IngestUseCase struct {
	store     ports.Store
	content   ports.ContentStore
	detector  ports.ObjectDetector
	extractor ports.StructuredExtractor
	barcodes  ports.BarcodeService
	repairer  ports.BarcodeRepairer
	cfg       IngestConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestUseCase(
	store ports.Store,
	content ports.ContentStore,
	detector ports.ObjectDetector,
	extractor ports.StructuredExtractor,
	barcodes ports.BarcodeService,
	repairer ports.BarcodeRepairer,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		store:     store,
		content:   content,
		detector:  detector,
		extractor: extractor,
		barcodes:  barcodes,
		repairer:  repairer,
		cfg:       cfg.normalize(),
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessByID runs the ML pipeline appropriate for the proof type.
func (uc *IngestUseCase) ProcessByID(ctx context.Context, proofID int64, opts ports.IngestOptions) error {
	proof, err := uc.store.Repos().Proofs.GetByID(ctx, proofID)
	if err != nil {
		return err
	}

	switch proof.Type {
	case domain.ProofTypePriceTag:
		return uc.RunObjectDetection(ctx, proof, opts)
	case domain.ProofTypeReceipt:
		return uc.RunReceiptExtraction(ctx, proof, opts)
	default:
		uc.logger.Debug("no ML pipeline for proof type", "proof_id", proof.ID, "type", proof.Type)
		return nil
	}
}

// RunObjectDetection detects price tag regions on a PRICE_TAG proof and
// creates one region per box above the threshold. Without Overwrite a
// second run for the same model is a no-op; with it, the old prediction and
// the pipeline-created regions that never got a price are regenerated.
func (uc *IngestUseCase) RunObjectDetection(ctx context.Context, proof *domain.Proof, opts ports.IngestOptions) error {
	repos := uc.store.Repos()
	existing, err := repos.Predictions.GetProofPrediction(ctx, proof.ID, uc.cfg.DetectorModel)
	if err != nil && !domain.IsKind(err, domain.ErrPredictionNotFound) {
		return fmt.Errorf("check existing detection: %w", err)
	}
	if existing != nil && !opts.Overwrite {
		return nil
	}

	boxes, modelVersion, detectErr := uc.detect(ctx, proof)

	var created []domain.PriceTag
	err = uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		if existing != nil {
			if err := uc.dropDetectionOutput(ctx, r, proof, existing.ID); err != nil {
				return err
			}
		}

		if _, err := uc.storeDetection(ctx, r, proof, boxes, modelVersion); err != nil {
			return err
		}

		for _, box := range boxes {
			if box.Score < uc.cfg.DetectionThreshold {
				continue
			}
			tag := domain.PriceTag{
				ProofID:     proof.ID,
				BoundingBox: box.BoundingBox,
				CreatedAt:   uc.now().UTC(),
				UpdatedAt:   uc.now().UTC(),
			}
			if err := r.PriceTags.Create(ctx, &tag); err != nil {
				return fmt.Errorf("insert price tag: %w", err)
			}
			created = append(created, tag)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if detectErr != nil || !opts.RunExtraction {
		return nil
	}
	for i := range created {
		if err := uc.RunPriceTagExtraction(ctx, proof, &created[i]); err != nil {
			return err
		}
	}
	return nil
}

// detect calls the object detector and degrades a failed call to zero
// boxes: the proof stays "nothing detected yet" instead of aborting.
func (uc *IngestUseCase) detect(ctx context.Context, proof *domain.Proof) ([]domain.DetectedBox, string, error) {
	image, err := uc.content.Open(ctx, proof.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("open proof image: %w", err)
	}
	defer image.Close()

	boxes, modelVersion, err := uc.detector.Detect(ctx, image)
	if err != nil {
		uc.logger.Warn("object detection failed, storing empty prediction",
			"proof_id", proof.ID, "error", err)
		return nil, modelVersion, err
	}
	return boxes, modelVersion, nil
}

func (uc *IngestUseCase) dropDetectionOutput(ctx context.Context, r ports.Repositories, proof *domain.Proof, predictionID int64) error {
	if err := r.Predictions.DeleteProofPrediction(ctx, predictionID); err != nil {
		return fmt.Errorf("delete stale detection: %w", err)
	}
	if err := r.Proofs.AdjustPredictionCount(ctx, proof.ID, -1); err != nil {
		return fmt.Errorf("adjust proof prediction_count: %w", err)
	}
	if _, err := r.PriceTags.DeleteGeneratedUnlinked(ctx, proof.ID); err != nil {
		return fmt.Errorf("drop regenerable price tags: %w", err)
	}
	return nil
}

func (uc *IngestUseCase) storeDetection(ctx context.Context, r ports.Repositories, proof *domain.Proof, boxes []domain.DetectedBox, modelVersion string) (*domain.ProofPrediction, error) {
	if boxes == nil {
		boxes = []domain.DetectedBox{}
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return nil, fmt.Errorf("marshal detection payload: %w", err)
	}

	prediction := &domain.ProofPrediction{
		ProofID:       proof.ID,
		Type:          domain.PredictionTypeObjectDetection,
		ModelName:     uc.cfg.DetectorModel,
		ModelVersion:  modelVersion,
		SchemaVersion: 1,
		Data:          data,
		Confidence:    maxScore(boxes),
		CreatedAt:     uc.now().UTC(),
	}
	if err := r.Predictions.CreateProofPrediction(ctx, prediction); err != nil {
		return nil, fmt.Errorf("insert detection prediction: %w", err)
	}
	if err := r.Proofs.AdjustPredictionCount(ctx, proof.ID, +1); err != nil {
		return nil, fmt.Errorf("adjust proof prediction_count: %w", err)
	}
	return prediction, nil
}

// RunPriceTagExtraction calls the structured extractor for one region and
// stores the result as a price tag prediction. A barcode with a valid check
// digit is kept verbatim so it can still match a price submitted later;
// only invalid barcodes go through repair, which attaches suggestions but
// never links anything.
func (uc *IngestUseCase) RunPriceTagExtraction(ctx context.Context, proof *domain.Proof, tag *domain.PriceTag) error {
	repos := uc.store.Repos()
	existing, err := repos.Predictions.GetPriceTagPrediction(ctx, tag.ID, uc.cfg.ExtractorModel)
	if err != nil && !domain.IsKind(err, domain.ErrPredictionNotFound) {
		return fmt.Errorf("check existing extraction: %w", err)
	}
	if existing != nil {
		return nil
	}

	extracted, modelVersion := uc.extractPriceTag(ctx, proof, tag)

	foundProduct := false
	if extracted.Barcode != "" {
		normalized := uc.barcodes.Normalize(extracted.Barcode)
		if normalized != "" && uc.barcodes.IsValidCheckDigit(normalized) {
			// Valid code: never touched, even when the catalog has
			// not seen the product yet. The lookup only decides the
			// found-product marker.
			known, err := repos.Products.Exists(ctx, normalized)
			if err != nil {
				uc.logger.Warn("catalog lookup failed", "price_tag_id", tag.ID, "error", err)
			}
			foundProduct = known
		} else {
			code, suggestions, err := uc.repairer.Repair(ctx, extracted.Barcode)
			if err != nil {
				uc.logger.Warn("barcode repair failed", "price_tag_id", tag.ID, "error", err)
			} else if code != "" {
				extracted.Barcode = code
				foundProduct = true
			} else {
				extracted.Barcode = ""
				extracted.BarcodeSuggestions = suggestions
			}
		}
	}

	data, err := json.Marshal(extracted)
	if err != nil {
		return fmt.Errorf("marshal extraction payload: %w", err)
	}

	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		prediction := &domain.PriceTagPrediction{
			PriceTagID:    tag.ID,
			Type:          domain.PredictionTypePriceTagExtraction,
			ModelName:     uc.cfg.ExtractorModel,
			ModelVersion:  modelVersion,
			SchemaVersion: 1,
			Data:          data,
			CreatedAt:     uc.now().UTC(),
		}
		if err := r.Predictions.CreatePriceTagPrediction(ctx, prediction); err != nil {
			return fmt.Errorf("insert extraction prediction: %w", err)
		}
		if err := r.PriceTags.AdjustPredictionCount(ctx, tag.ID, +1); err != nil {
			return fmt.Errorf("adjust price tag prediction_count: %w", err)
		}

		if foundProduct && !containsTag(tag.Tags, domain.TagPredictionFoundProduct) {
			tag.Tags = append(tag.Tags, domain.TagPredictionFoundProduct)
			tag.UpdatedAt = uc.now().UTC()
			if err := r.PriceTags.Update(ctx, tag); err != nil {
				return fmt.Errorf("annotate price tag: %w", err)
			}
		}
		return nil
	})
}

func (uc *IngestUseCase) extractPriceTag(ctx context.Context, proof *domain.Proof, tag *domain.PriceTag) (*domain.ExtractedPriceTag, string) {
	image, err := uc.content.Open(ctx, proof.FilePath)
	if err != nil {
		uc.logger.Warn("open proof image failed, storing empty extraction",
			"proof_id", proof.ID, "price_tag_id", tag.ID, "error", err)
		return &domain.ExtractedPriceTag{}, ""
	}
	defer image.Close()

	extracted, modelVersion, err := uc.extractor.ExtractPriceTag(ctx, image)
	if err != nil || extracted == nil {
		uc.logger.Warn("price tag extraction failed, storing empty extraction",
			"proof_id", proof.ID, "price_tag_id", tag.ID, "error", err)
		return &domain.ExtractedPriceTag{}, modelVersion
	}
	return extracted, modelVersion
}

// RunReceiptExtraction parses a RECEIPT proof into ordered receipt items.
// One LLM call per proof; every line becomes one item with the raw line
// JSON plus a predicted_product_code hint when an existing price at the
// same location carries the exact same product name.
func (uc *IngestUseCase) RunReceiptExtraction(ctx context.Context, proof *domain.Proof, opts ports.IngestOptions) error {
	repos := uc.store.Repos()
	existing, err := repos.Predictions.GetProofPrediction(ctx, proof.ID, uc.cfg.ReceiptModel)
	if err != nil && !domain.IsKind(err, domain.ErrPredictionNotFound) {
		return fmt.Errorf("check existing receipt extraction: %w", err)
	}
	if existing != nil && !opts.Overwrite {
		return nil
	}

	lines, modelVersion := uc.extractReceipt(ctx, proof)

	for i := range lines {
		if lines[i].ProductName == "" {
			continue
		}
		code, err := repos.Prices.FindProductCodeByName(ctx, proof.Location, lines[i].ProductName)
		if err != nil {
			return fmt.Errorf("product name hint lookup: %w", err)
		}
		if code != nil {
			lines[i].PredictedProductCode = *code
		}
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal receipt payload: %w", err)
	}

	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		if existing != nil {
			if err := r.Predictions.DeleteProofPrediction(ctx, existing.ID); err != nil {
				return fmt.Errorf("delete stale receipt extraction: %w", err)
			}
			if err := r.Proofs.AdjustPredictionCount(ctx, proof.ID, -1); err != nil {
				return fmt.Errorf("adjust proof prediction_count: %w", err)
			}
			if _, err := r.ReceiptItems.DeleteUnlinked(ctx, proof.ID); err != nil {
				return fmt.Errorf("drop regenerable receipt items: %w", err)
			}
		}

		prediction := &domain.ProofPrediction{
			ProofID:       proof.ID,
			Type:          domain.PredictionTypeReceiptExtraction,
			ModelName:     uc.cfg.ReceiptModel,
			ModelVersion:  modelVersion,
			SchemaVersion: 1,
			Data:          data,
			CreatedAt:     uc.now().UTC(),
		}
		if err := r.Predictions.CreateProofPrediction(ctx, prediction); err != nil {
			return fmt.Errorf("insert receipt prediction: %w", err)
		}
		if err := r.Proofs.AdjustPredictionCount(ctx, proof.ID, +1); err != nil {
			return fmt.Errorf("adjust proof prediction_count: %w", err)
		}

		for i := range lines {
			lineData, err := json.Marshal(lines[i])
			if err != nil {
				return fmt.Errorf("marshal receipt line: %w", err)
			}
			item := domain.ReceiptItem{
				ProofID:       proof.ID,
				Order:         i + 1,
				PredictedData: lineData,
				SchemaVersion: domain.ReceiptItemSchemaVersion,
				CreatedAt:     uc.now().UTC(),
				UpdatedAt:     uc.now().UTC(),
			}
			if err := r.ReceiptItems.Create(ctx, &item); err != nil {
				return fmt.Errorf("insert receipt item: %w", err)
			}
		}
		return nil
	})
}

func (uc *IngestUseCase) extractReceipt(ctx context.Context, proof *domain.Proof) ([]domain.ExtractedReceiptItem, string) {
	image, err := uc.content.Open(ctx, proof.FilePath)
	if err != nil {
		uc.logger.Warn("open proof image failed, storing empty extraction",
			"proof_id", proof.ID, "error", err)
		return []domain.ExtractedReceiptItem{}, ""
	}
	defer image.Close()

	lines, modelVersion, err := uc.extractor.ExtractReceipt(ctx, image)
	if err != nil || lines == nil {
		uc.logger.Warn("receipt extraction failed, storing empty extraction",
			"proof_id", proof.ID, "error", err)
		return []domain.ExtractedReceiptItem{}, modelVersion
	}
	return lines, modelVersion
}

// IngestClassification stores a proof-type classification payload through
// the same idempotent path as the other prediction types.
func (uc *IngestUseCase) IngestClassification(ctx context.Context, proofID int64, modelName, modelVersion string, data json.RawMessage, confidence *float64) error {
	repos := uc.store.Repos()
	existing, err := repos.Predictions.GetProofPrediction(ctx, proofID, modelName)
	if err != nil && !domain.IsKind(err, domain.ErrPredictionNotFound) {
		return fmt.Errorf("check existing classification: %w", err)
	}
	if existing != nil {
		return nil
	}

	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		prediction := &domain.ProofPrediction{
			ProofID:       proofID,
			Type:          domain.PredictionTypeClassification,
			ModelName:     modelName,
			ModelVersion:  modelVersion,
			SchemaVersion: 1,
			Data:          data,
			Confidence:    confidence,
			CreatedAt:     uc.now().UTC(),
		}
		if err := r.Predictions.CreateProofPrediction(ctx, prediction); err != nil {
			return fmt.Errorf("insert classification prediction: %w", err)
		}
		if err := r.Proofs.AdjustPredictionCount(ctx, proofID, +1); err != nil {
			return fmt.Errorf("adjust proof prediction_count: %w", err)
		}
		return nil
	})
}

// ReplaceProofPredictionData is the explicit update-extraction operation:
// the single sanctioned mutation of an otherwise immutable prediction.
func (uc *IngestUseCase) ReplaceProofPredictionData(ctx context.Context, proofID int64, modelName string, data json.RawMessage) error {
	prediction, err := uc.store.Repos().Predictions.GetProofPrediction(ctx, proofID, modelName)
	if err != nil {
		return err
	}
	return uc.store.Repos().Predictions.UpdateProofPredictionData(ctx, prediction.ID, data)
}

// ReplacePriceTagPredictionData mirrors ReplaceProofPredictionData for
// price tag extractions.
func (uc *IngestUseCase) ReplacePriceTagPredictionData(ctx context.Context, priceTagID int64, modelName string, data json.RawMessage) error {
	prediction, err := uc.store.Repos().Predictions.GetPriceTagPrediction(ctx, priceTagID, modelName)
	if err != nil {
		return err
	}
	return uc.store.Repos().Predictions.UpdatePriceTagPredictionData(ctx, prediction.ID, data)
}

func maxScore(boxes []domain.DetectedBox) *float64 {
	if len(boxes) == 0 {
		return nil
	}
	best := boxes[0].Score
	for _, box := range boxes[1:] {
		if box.Score > best {
			best = box.Score
		}
	}
	return &best
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
