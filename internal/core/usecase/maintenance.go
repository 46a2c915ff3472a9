package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crowdprices/evidence/internal/core/ports"
)

// duplicateSweepPageSize bounds how many prices one recompute transaction
// touches.
const duplicateSweepPageSize = 500

// MaintenanceUseCase is the repair surface: duplicate recompute, proof
// merging, counter recount and redispatch of proofs the queue dropped. None
// of these run on the hot path; they fix drift left behind by bulk
// operations that bypassed it.
type MaintenanceUseCase struct {
	store  ports.Store
	queue  ports.DispatchQueue
	logger *slog.Logger
}

func NewMaintenanceUseCase(store ports.Store, queue ports.DispatchQueue, logger *slog.Logger) *MaintenanceUseCase {
	return &MaintenanceUseCase{store: store, queue: queue, logger: logger}
}

// RecomputeDuplicates walks every price and re-derives duplicate_of from
// the duplicate key. Returns how many prices changed canonical reference.
func (uc *MaintenanceUseCase) RecomputeDuplicates(ctx context.Context) (int, error) {
	changed := 0
	afterID := int64(0)

	for {
		var pageDone bool
		err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
			prices, err := r.Prices.ListAfter(ctx, afterID, duplicateSweepPageSize)
			if err != nil {
				return fmt.Errorf("list prices: %w", err)
			}
			if len(prices) == 0 {
				pageDone = true
				return nil
			}

			for i := range prices {
				price := &prices[i]
				canonical, err := r.Prices.FindCanonical(ctx, price)
				if err != nil {
					return fmt.Errorf("find canonical for price %d: %w", price.ID, err)
				}

				var canonicalID *int64
				if canonical != nil {
					canonicalID = &canonical.ID
				}
				if sameOptionalID(price.DuplicateOf, canonicalID) {
					continue
				}
				if err := r.Prices.SetDuplicateOf(ctx, price.ID, canonicalID); err != nil {
					return fmt.Errorf("set duplicate_of for price %d: %w", price.ID, err)
				}
				changed++
			}
			afterID = prices[len(prices)-1].ID
			return nil
		})
		if err != nil {
			return changed, err
		}
		if pageDone {
			return changed, nil
		}
	}
}

// MergeDuplicateProofs folds every proof sharing the reference proof's
// owner, date, type and location (and content hash, when md5Check is set)
// into the reference: their prices move over, then the husks are deleted.
// The whole merge is one transaction; a partial merge never survives.
func (uc *MaintenanceUseCase) MergeDuplicateProofs(ctx context.Context, referenceProofID int64, md5Check bool) (int, error) {
	merged := 0
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		reference, err := r.Proofs.GetByID(ctx, referenceProofID)
		if err != nil {
			return err
		}

		duplicates, err := r.Proofs.FindDuplicates(ctx, reference, md5Check)
		if err != nil {
			return fmt.Errorf("find duplicate proofs: %w", err)
		}

		for i := range duplicates {
			dup := &duplicates[i]

			moved, err := r.Prices.MoveToProof(ctx, dup.ID, reference.ID)
			if err != nil {
				return fmt.Errorf("move prices from proof %d: %w", dup.ID, err)
			}
			if moved > 0 {
				if err := r.Proofs.AdjustPriceCount(ctx, dup.ID, -int(moved)); err != nil {
					return fmt.Errorf("adjust duplicate proof price_count: %w", err)
				}
				if err := r.Proofs.AdjustPriceCount(ctx, reference.ID, int(moved)); err != nil {
					return fmt.Errorf("adjust reference proof price_count: %w", err)
				}
			}

			if err := r.Proofs.Delete(ctx, dup.ID); err != nil {
				return fmt.Errorf("delete duplicate proof %d: %w", dup.ID, err)
			}
			uc.logger.Info("merged duplicate proof",
				"reference_proof_id", reference.ID, "duplicate_proof_id", dup.ID, "prices_moved", moved)
			merged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

// redispatchPageSize bounds one unprocessed-proof listing.
const redispatchPageSize = 200

// RedispatchUnprocessed re-enqueues ML-eligible proofs that never received a
// prediction. The queue is fire-and-forget, so an upload published while no
// worker was subscribed would otherwise stay unprocessed forever; ingestion
// idempotence makes re-publishing a processed proof harmless. Returns how
// many proofs were re-enqueued.
func (uc *MaintenanceUseCase) RedispatchUnprocessed(ctx context.Context) (int, error) {
	dispatched := 0
	afterID := int64(0)

	for {
		proofs, err := uc.store.Repos().Proofs.ListUnprocessed(ctx, afterID, redispatchPageSize)
		if err != nil {
			return dispatched, fmt.Errorf("list unprocessed proofs: %w", err)
		}
		if len(proofs) == 0 {
			return dispatched, nil
		}

		for i := range proofs {
			proof := &proofs[i]
			if err := uc.queue.PublishProofUploaded(ctx, proof.ID); err != nil {
				return dispatched, fmt.Errorf("redispatch proof %d: %w", proof.ID, err)
			}
			uc.logger.Info("proof redispatched", "proof_id", proof.ID, "type", proof.Type)
			dispatched++
			afterID = proof.ID
		}
	}
}

// Recount rebuilds every denormalized counter from the source rows. It is
// idempotent and the only sanctioned answer to counter drift; the original
// writes are never replayed.
func (uc *MaintenanceUseCase) Recount(ctx context.Context) error {
	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		if err := r.Proofs.RecountAll(ctx); err != nil {
			return fmt.Errorf("recount proofs: %w", err)
		}
		if err := r.PriceTags.RecountAll(ctx); err != nil {
			return fmt.Errorf("recount price tags: %w", err)
		}
		if err := r.Locations.RecountAll(ctx); err != nil {
			return fmt.Errorf("recount locations: %w", err)
		}
		if err := r.Products.RecountAll(ctx); err != nil {
			return fmt.Errorf("recount products: %w", err)
		}
		if err := r.Users.RecountAll(ctx); err != nil {
			return fmt.Errorf("recount users: %w", err)
		}
		return nil
	})
}
