package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
	"github.com/crowdprices/evidence/internal/core/validate"
)

// AnnotateUseCase covers the manual annotation surface of price tags and
// receipt items: drawn regions, status decisions, explicit links. Every
// transition goes through the validation engine so the status/link
// invariant cannot be broken by hand either.
type AnnotateUseCase struct {
	store ports.Store
	now   func() time.Time
}

func NewAnnotateUseCase(store ports.Store) *AnnotateUseCase {
	return &AnnotateUseCase{store: store, now: time.Now}
}

// CreatePriceTag records a user-drawn region on a PRICE_TAG proof.
func (uc *AnnotateUseCase) CreatePriceTag(ctx context.Context, tag *domain.PriceTag) (*domain.PriceTag, error) {
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		tc, err := uc.tagContext(ctx, r, tag.ProofID, tag.PriceID)
		if err != nil {
			return err
		}
		if err := validate.PriceTag(tag, tc).AsError(); err != nil {
			return err
		}

		now := uc.now().UTC()
		tag.CreatedAt = now
		tag.UpdatedAt = now
		return r.PriceTags.Create(ctx, tag)
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// SetPriceTagStatus applies a manual annotation decision. Statuses other
// than linked_to_price require the tag to be unlinked first.
func (uc *AnnotateUseCase) SetPriceTagStatus(ctx context.Context, id int64, status domain.TagStatus, actor *string) (*domain.PriceTag, error) {
	var updated *domain.PriceTag
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		tag, err := r.PriceTags.GetByID(ctx, id)
		if err != nil {
			return err
		}
		tag.Status = &status
		tag.UpdatedBy = actor

		tc, err := uc.tagContext(ctx, r, tag.ProofID, tag.PriceID)
		if err != nil {
			return err
		}
		if err := validate.PriceTag(tag, tc).AsError(); err != nil {
			return err
		}

		tag.UpdatedAt = uc.now().UTC()
		if err := r.PriceTags.Update(ctx, tag); err != nil {
			return err
		}
		updated = tag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LinkPriceTag is the manual counterpart of the matcher: it points a region
// at a price of the same proof and forces linked_to_price.
func (uc *AnnotateUseCase) LinkPriceTag(ctx context.Context, id, priceID int64, actor *string) (*domain.PriceTag, error) {
	var updated *domain.PriceTag
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		tag, err := r.PriceTags.GetByID(ctx, id)
		if err != nil {
			return err
		}
		tag.LinkTo(priceID)
		tag.UpdatedBy = actor

		tc, err := uc.tagContext(ctx, r, tag.ProofID, tag.PriceID)
		if err != nil {
			return err
		}
		if err := validate.PriceTag(tag, tc).AsError(); err != nil {
			return err
		}

		tag.UpdatedAt = uc.now().UTC()
		if err := r.PriceTags.Update(ctx, tag); err != nil {
			return err
		}
		updated = tag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePriceTag soft-deletes a linked-history region and hard-deletes one
// that never got a price. Deleting while linked is rejected; unlink first.
func (uc *AnnotateUseCase) DeletePriceTag(ctx context.Context, id int64, actor *string) error {
	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		tag, err := r.PriceTags.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if tag.Linked() {
			return domain.WrapError(domain.ErrInvalidInput, "delete price tag",
				fmt.Errorf("price tag %d is linked to price %d", id, *tag.PriceID))
		}
		if tag.HardDeletable() && tag.Status == nil {
			return r.PriceTags.Delete(ctx, id)
		}

		status := domain.TagStatusDeleted
		tag.Status = &status
		tag.UpdatedBy = actor
		tag.UpdatedAt = uc.now().UTC()
		return r.PriceTags.Update(ctx, tag)
	})
}

// SetReceiptItemStatus applies a manual decision to a parsed receipt line.
func (uc *AnnotateUseCase) SetReceiptItemStatus(ctx context.Context, id int64, status domain.TagStatus) (*domain.ReceiptItem, error) {
	var updated *domain.ReceiptItem
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		item, err := r.ReceiptItems.GetByID(ctx, id)
		if err != nil {
			return err
		}
		item.Status = &status

		tc, err := uc.itemContext(ctx, r, item.ProofID, item.PriceID)
		if err != nil {
			return err
		}
		if err := validate.ReceiptItem(item, tc).AsError(); err != nil {
			return err
		}

		item.UpdatedAt = uc.now().UTC()
		if err := r.ReceiptItems.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LinkReceiptItem points a receipt line at a price of the same proof.
func (uc *AnnotateUseCase) LinkReceiptItem(ctx context.Context, id, priceID int64) (*domain.ReceiptItem, error) {
	var updated *domain.ReceiptItem
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		item, err := r.ReceiptItems.GetByID(ctx, id)
		if err != nil {
			return err
		}
		item.LinkTo(priceID)

		tc, err := uc.itemContext(ctx, r, item.ProofID, item.PriceID)
		if err != nil {
			return err
		}
		if err := validate.ReceiptItem(item, tc).AsError(); err != nil {
			return err
		}

		item.UpdatedAt = uc.now().UTC()
		if err := r.ReceiptItems.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (uc *AnnotateUseCase) tagContext(ctx context.Context, r ports.Repositories, proofID int64, priceID *int64) (validate.PriceTagContext, error) {
	return fetchLinkContext(ctx, r, proofID, priceID)
}

func (uc *AnnotateUseCase) itemContext(ctx context.Context, r ports.Repositories, proofID int64, priceID *int64) (validate.PriceTagContext, error) {
	return fetchLinkContext(ctx, r, proofID, priceID)
}

func fetchLinkContext(ctx context.Context, r ports.Repositories, proofID int64, priceID *int64) (validate.PriceTagContext, error) {
	var tc validate.PriceTagContext

	proof, err := r.Proofs.GetByID(ctx, proofID)
	switch {
	case err == nil:
		tc.Proof = proof
	case domain.IsKind(err, domain.ErrProofNotFound):
	default:
		return tc, fmt.Errorf("fetch proof: %w", err)
	}

	if priceID != nil {
		price, err := r.Prices.GetByID(ctx, *priceID)
		switch {
		case err == nil:
			tc.LinkedPrice = price
		case domain.IsKind(err, domain.ErrPriceNotFound):
		default:
			return tc, fmt.Errorf("fetch price: %w", err)
		}
	}
	return tc, nil
}
