package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
	"github.com/crowdprices/evidence/internal/core/validate"
)

// PriceUseCase owns the price lifecycle: validated creation with duplicate
// tagging and counter upkeep, owner-scoped update, and deletion that unwinds
// every side effect of creation.
type PriceUseCase struct {
	store    ports.Store
	resolver ports.TaxonomyResolver
	now      func() time.Time
}

func NewPriceUseCase(store ports.Store, resolver ports.TaxonomyResolver) *PriceUseCase {
	return &PriceUseCase{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

// Create runs the full mutation sequence inside one transaction:
// validate, normalize, write, duplicate-tag, counter-update.
func (uc *PriceUseCase) Create(ctx context.Context, price *domain.Price) (*domain.Price, error) {
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		pc, err := uc.priceContext(ctx, r, price, false)
		if err != nil {
			return err
		}

		fe, err := validate.Price(ctx, uc.resolver, price, pc)
		if err != nil {
			return fmt.Errorf("validate price: %w", err)
		}
		if err := fe.AsError(); err != nil {
			return err
		}

		now := uc.now().UTC()
		price.CreatedAt = now
		price.UpdatedAt = now
		if err := r.Prices.Create(ctx, price); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}

		if err := uc.tagDuplicate(ctx, r, price); err != nil {
			return err
		}
		if err := applyPriceCounters(ctx, r, price, +1); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

// tagDuplicate records the canonical observation without blocking the
// insert. Two users photographing the same shelf both keep their rows; the
// later one points at the earlier via duplicate_of.
func (uc *PriceUseCase) tagDuplicate(ctx context.Context, r ports.Repositories, price *domain.Price) error {
	canonical, err := r.Prices.FindCanonical(ctx, price)
	if err != nil {
		return fmt.Errorf("find canonical price: %w", err)
	}
	if canonical == nil {
		return nil
	}
	price.DuplicateOf = &canonical.ID
	if err := r.Prices.SetDuplicateOf(ctx, price.ID, price.DuplicateOf); err != nil {
		return fmt.Errorf("set duplicate_of: %w", err)
	}
	return nil
}

// PriceUpdate carries the owner-mutable fields. Identity fields
// (product_code, category_tag, proof linkage) are fixed at creation.
type PriceUpdate struct {
	Amount                *decimal.Decimal
	IsDiscounted          *bool
	AmountWithoutDiscount *decimal.Decimal
	ClearWithoutDiscount  bool
	DiscountType          *domain.DiscountType
	ClearDiscountType     bool
	ReceiptQuantity       *int
}

func (uc *PriceUseCase) Update(ctx context.Context, id int64, actor *string, change PriceUpdate) (*domain.Price, error) {
	var updated *domain.Price
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		price, err := r.Prices.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !price.OwnedBy(actor) {
			return domain.WrapError(domain.ErrInvalidInput, "update price", fmt.Errorf("price %d belongs to another user", id))
		}

		if change.Amount != nil {
			price.Amount = *change.Amount
		}
		if change.IsDiscounted != nil {
			price.IsDiscounted = *change.IsDiscounted
		}
		if change.ClearWithoutDiscount {
			price.AmountWithoutDiscount = nil
		} else if change.AmountWithoutDiscount != nil {
			price.AmountWithoutDiscount = change.AmountWithoutDiscount
		}
		if change.ClearDiscountType {
			price.DiscountType = nil
		} else if change.DiscountType != nil {
			price.DiscountType = change.DiscountType
		}
		if change.ReceiptQuantity != nil {
			price.ReceiptQuantity = change.ReceiptQuantity
		}

		pc, err := uc.priceContext(ctx, r, price, true)
		if err != nil {
			return err
		}
		fe, err := validate.Price(ctx, uc.resolver, price, pc)
		if err != nil {
			return fmt.Errorf("validate price: %w", err)
		}
		if err := fe.AsError(); err != nil {
			return err
		}

		price.UpdatedAt = uc.now().UTC()
		if err := r.Prices.Update(ctx, price); err != nil {
			return fmt.Errorf("update price: %w", err)
		}
		updated = price
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a price, detaches every region or receipt line pointing at
// it (their status resets to unknown) and decrements all four counters in
// the same transaction. actor nil means a moderator action.
func (uc *PriceUseCase) Delete(ctx context.Context, id int64, actor *string) error {
	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		price, err := r.Prices.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !price.OwnedBy(actor) {
			return domain.WrapError(domain.ErrInvalidInput, "delete price", fmt.Errorf("price %d belongs to another user", id))
		}

		if _, err := r.PriceTags.UnlinkByPrice(ctx, id); err != nil {
			return fmt.Errorf("unlink price tags: %w", err)
		}
		if _, err := r.ReceiptItems.UnlinkByPrice(ctx, id); err != nil {
			return fmt.Errorf("unlink receipt items: %w", err)
		}
		if _, err := r.Prices.ClearDuplicateOf(ctx, id); err != nil {
			return fmt.Errorf("clear duplicate references: %w", err)
		}

		if err := r.Prices.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete price: %w", err)
		}
		if err := applyPriceCounters(ctx, r, price, -1); err != nil {
			return err
		}
		return nil
	})
}

// priceContext fetches the collaborator rows validation needs. Missing
// referenced rows surface as field errors, not hard failures, so they stay
// attributed to the field that named them.
func (uc *PriceUseCase) priceContext(ctx context.Context, r ports.Repositories, price *domain.Price, isUpdate bool) (validate.PriceContext, error) {
	pc := validate.PriceContext{Now: uc.now, IsUpdate: isUpdate}

	if price.ProofID != nil {
		proof, err := r.Proofs.GetByID(ctx, *price.ProofID)
		switch {
		case err == nil:
			pc.Proof = proof
		case domain.IsKind(err, domain.ErrProofNotFound):
		default:
			return pc, fmt.Errorf("fetch proof: %w", err)
		}
	}
	if price.Location.LocationID != nil {
		location, err := r.Locations.GetByID(ctx, *price.Location.LocationID)
		switch {
		case err == nil:
			pc.Location = location
		case domain.IsKind(err, domain.ErrLocationNotFound):
		default:
			return pc, fmt.Errorf("fetch location: %w", err)
		}
	}
	return pc, nil
}

// applyPriceCounters adjusts the four denormalized price counters by delta
// within the caller's transaction. Decrements clamp at zero in the
// repository layer.
func applyPriceCounters(ctx context.Context, r ports.Repositories, price *domain.Price, delta int) error {
	if price.Owner != nil {
		if err := r.Users.AdjustPriceCount(ctx, *price.Owner, delta); err != nil {
			return fmt.Errorf("adjust user price_count: %w", err)
		}
	}
	if price.ProofID != nil {
		if err := r.Proofs.AdjustPriceCount(ctx, *price.ProofID, delta); err != nil {
			return fmt.Errorf("adjust proof price_count: %w", err)
		}
	}
	if price.ProductCode != nil {
		if err := r.Products.AdjustPriceCount(ctx, *price.ProductCode, delta); err != nil {
			return fmt.Errorf("adjust product price_count: %w", err)
		}
	}
	if price.Location.LocationID != nil {
		if err := r.Locations.AdjustPriceCount(ctx, *price.Location.LocationID, delta); err != nil {
			return fmt.Errorf("adjust location price_count: %w", err)
		}
	}
	return nil
}
