package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// MatchUseCase links predicted items to concrete prices. Linking happens
// only when exactly one unclaimed price on the proof satisfies the
// type-specific value match; anything ambiguous is left for manual
// resolution so a racing sweep can never produce a wrong link.
type MatchUseCase struct {
	store    ports.Store
	barcodes ports.BarcodeService
	logger   *slog.Logger
	now      func() time.Time
}

func NewMatchUseCase(store ports.Store, barcodes ports.BarcodeService, logger *slog.Logger) *MatchUseCase {
	return &MatchUseCase{
		store:    store,
		barcodes: barcodes,
		logger:   logger,
		now:      time.Now,
	}
}

// SweepPriceTags attempts to link every undecided region of a proof to a
// price and returns how many links were made.
func (uc *MatchUseCase) SweepPriceTags(ctx context.Context, proofID int64) (int, error) {
	matched := 0
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		prices, err := r.Prices.ListByProof(ctx, proofID)
		if err != nil {
			return fmt.Errorf("list proof prices: %w", err)
		}
		tags, err := r.PriceTags.ListByProof(ctx, proofID)
		if err != nil {
			return fmt.Errorf("list price tags: %w", err)
		}

		claimed := claimedPriceIDs(tags)
		for i := range tags {
			tag := &tags[i]
			// Only undecided regions participate; manual annotations
			// (not_readable, not_price_tag, deleted) are terminal.
			if tag.Status != nil || tag.Linked() {
				continue
			}

			extracted, err := uc.latestExtraction(ctx, r, tag.ID)
			if err != nil {
				return err
			}
			if extracted == nil {
				continue
			}

			price, ok := uc.matchPriceTag(extracted, prices, claimed)
			if !ok {
				continue
			}

			tag.LinkTo(price.ID)
			tag.UpdatedAt = uc.now().UTC()
			if err := r.PriceTags.Update(ctx, tag); err != nil {
				return fmt.Errorf("link price tag %d: %w", tag.ID, err)
			}
			claimed[price.ID] = true
			matched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}

// SweepReceiptItems mirrors SweepPriceTags for parsed receipt lines.
func (uc *MatchUseCase) SweepReceiptItems(ctx context.Context, proofID int64) (int, error) {
	matched := 0
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		prices, err := r.Prices.ListByProof(ctx, proofID)
		if err != nil {
			return fmt.Errorf("list proof prices: %w", err)
		}
		items, err := r.ReceiptItems.ListByProof(ctx, proofID)
		if err != nil {
			return fmt.Errorf("list receipt items: %w", err)
		}

		claimed := make(map[int64]bool, len(items))
		for i := range items {
			if items[i].PriceID != nil {
				claimed[*items[i].PriceID] = true
			}
		}

		for i := range items {
			item := &items[i]
			if item.Status != nil || item.Linked() {
				continue
			}

			var line domain.ExtractedReceiptItem
			if len(item.PredictedData) == 0 {
				continue
			}
			if err := json.Unmarshal(item.PredictedData, &line); err != nil {
				uc.logger.Warn("unparsable receipt line, skipping",
					"receipt_item_id", item.ID, "error", err)
				continue
			}

			price, ok := uc.matchReceiptItem(&line, prices, claimed)
			if !ok {
				continue
			}

			item.LinkTo(price.ID)
			item.UpdatedAt = uc.now().UTC()
			if err := r.ReceiptItems.Update(ctx, item); err != nil {
				return fmt.Errorf("link receipt item %d: %w", item.ID, err)
			}
			claimed[price.ID] = true
			matched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}

// latestExtraction returns the newest structured-extraction payload for a
// region, or nil when none exists or it cannot be parsed.
func (uc *MatchUseCase) latestExtraction(ctx context.Context, r ports.Repositories, priceTagID int64) (*domain.ExtractedPriceTag, error) {
	predictions, err := r.Predictions.ListPriceTagPredictions(ctx, priceTagID)
	if err != nil {
		return nil, fmt.Errorf("list price tag predictions: %w", err)
	}

	var latest *domain.PriceTagPrediction
	for i := range predictions {
		p := &predictions[i]
		if p.Type != domain.PredictionTypePriceTagExtraction {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil || len(latest.Data) == 0 {
		return nil, nil
	}

	var extracted domain.ExtractedPriceTag
	if err := json.Unmarshal(latest.Data, &extracted); err != nil {
		uc.logger.Warn("unparsable extraction payload, skipping",
			"price_tag_id", priceTagID, "error", err)
		return nil, nil
	}
	return &extracted, nil
}

// matchPriceTag finds the single unclaimed price of the proof whose
// identity and value both equal the extraction. More than one hit means
// the proof has indistinguishable prices; linking any of them would be a
// guess, so none is linked.
func (uc *MatchUseCase) matchPriceTag(extracted *domain.ExtractedPriceTag, prices []domain.Price, claimed map[int64]bool) (*domain.Price, bool) {
	var candidate *domain.Price
	for i := range prices {
		price := &prices[i]
		if claimed[price.ID] {
			continue
		}
		if !uc.priceTagMatches(extracted, price) {
			continue
		}
		if candidate != nil {
			return nil, false
		}
		candidate = price
	}
	return candidate, candidate != nil
}

func (uc *MatchUseCase) priceTagMatches(extracted *domain.ExtractedPriceTag, price *domain.Price) bool {
	if !amountEqual(extracted.Price, price.Amount) {
		return false
	}
	switch price.Kind() {
	case domain.PriceKindProduct:
		if extracted.Barcode == "" || price.ProductCode == nil {
			return false
		}
		return uc.barcodes.Normalize(extracted.Barcode) == uc.barcodes.Normalize(*price.ProductCode)
	case domain.PriceKindCategory:
		if extracted.CategoryTag == "" || price.CategoryTag == nil {
			return false
		}
		return extracted.CategoryTag == *price.CategoryTag
	}
	return false
}

func (uc *MatchUseCase) matchReceiptItem(line *domain.ExtractedReceiptItem, prices []domain.Price, claimed map[int64]bool) (*domain.Price, bool) {
	var candidate *domain.Price
	for i := range prices {
		price := &prices[i]
		if claimed[price.ID] {
			continue
		}
		if !uc.receiptItemMatches(line, price) {
			continue
		}
		if candidate != nil {
			return nil, false
		}
		candidate = price
	}
	return candidate, candidate != nil
}

// receiptItemMatches requires value equality; the product code hint, when
// present, must also agree. Product name similarity never decides a link
// on its own.
func (uc *MatchUseCase) receiptItemMatches(line *domain.ExtractedReceiptItem, price *domain.Price) bool {
	if !amountEqual(line.Price, price.Amount) {
		return false
	}
	if line.PredictedProductCode == "" {
		return true
	}
	if price.ProductCode == nil {
		return false
	}
	return uc.barcodes.Normalize(line.PredictedProductCode) == uc.barcodes.Normalize(*price.ProductCode)
}

// amountEqual compares the predicted price with the stored one as decimals.
// String-typed decimal comparison sidesteps float representation noise:
// "1.99" must equal 1.99 exactly.
func amountEqual(predicted json.Number, amount decimal.Decimal) bool {
	if predicted == "" {
		return false
	}
	d, err := decimal.NewFromString(predicted.String())
	if err != nil {
		return false
	}
	return d.Equal(amount)
}

func claimedPriceIDs(tags []domain.PriceTag) map[int64]bool {
	claimed := make(map[int64]bool, len(tags))
	for i := range tags {
		if tags[i].PriceID != nil {
			claimed[*tags[i].PriceID] = true
		}
	}
	return claimed
}
