package usecase

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
	"github.com/crowdprices/evidence/internal/core/validate"
)

// ProofUseCase owns the proof lifecycle: idempotent upload, owner
// correction with price cascade, and guarded deletion.
type ProofUseCase struct {
	store   ports.Store
	content ports.ContentStore
	queue   ports.DispatchQueue
	logger  *slog.Logger
	now     func() time.Time
}

func NewProofUseCase(store ports.Store, content ports.ContentStore, queue ports.DispatchQueue, logger *slog.Logger) *ProofUseCase {
	return &ProofUseCase{
		store:   store,
		content: content,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// Upload stores one piece of evidence. Re-submitting the same image with the
// same owner, type, location and date short-circuits and returns the
// existing proof; the boolean reports whether a new row was created.
func (uc *ProofUseCase) Upload(ctx context.Context, upload ports.ProofUpload) (*domain.Proof, bool, error) {
	image, err := io.ReadAll(upload.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read upload body: %w", err)
	}
	sum := md5.Sum(image)
	contentHash := hex.EncodeToString(sum[:])

	repos := uc.store.Repos()

	existing, err := repos.Proofs.FindByUploadKey(ctx, upload.Owner, contentHash, upload.Type, upload.Location, upload.Date)
	if err != nil && !domain.IsKind(err, domain.ErrProofNotFound) {
		return nil, false, fmt.Errorf("upload dedup check: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := uc.now().UTC()
	proof := &domain.Proof{
		Type:        upload.Type,
		Location:    upload.Location,
		Date:        upload.Date,
		Currency:    upload.Currency,
		Owner:       upload.Owner,
		FilePath:    fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(upload.Filename)),
		MimeType:    upload.MimeType,
		ContentHash: contentHash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var location *domain.Location
	if upload.Location.LocationID != nil {
		location, err = repos.Locations.GetByID(ctx, *upload.Location.LocationID)
		if err != nil && !domain.IsKind(err, domain.ErrLocationNotFound) {
			return nil, false, fmt.Errorf("fetch location: %w", err)
		}
	}
	fe := validate.Proof(proof, validate.ProofContext{Location: location, Now: uc.now})
	if err := fe.AsError(); err != nil {
		return nil, false, err
	}

	if err := uc.content.Save(ctx, proof.FilePath, bytes.NewReader(image)); err != nil {
		return nil, false, fmt.Errorf("save proof image: %w", err)
	}
	if err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		return r.Proofs.Create(ctx, proof)
	}); err != nil {
		// No row references the image, so the file must go too.
		if rmErr := uc.content.Remove(ctx, proof.FilePath); rmErr != nil {
			uc.logger.Warn("orphaned proof image not removed", "key", proof.FilePath, "error", rmErr)
		}
		return nil, false, fmt.Errorf("insert proof: %w", err)
	}

	// ML dispatch is best effort: a dead queue degrades the proof to
	// "no predictions yet", it never fails the upload.
	if err := uc.queue.PublishProofUploaded(ctx, proof.ID); err != nil {
		uc.logger.Warn("proof dispatch failed", "proof_id", proof.ID, "error", err)
	}

	return proof, true, nil
}

// ProofUpdate carries the owner-correctable fields.
type ProofUpdate struct {
	Location *domain.LocationRef
	Date     *time.Time
	Currency *string
}

// Update corrects a proof's location, date or currency and cascades the
// correction to every price on the proof, keeping location price counters
// consistent when prices move between locations.
func (uc *ProofUseCase) Update(ctx context.Context, id int64, actor *string, change ProofUpdate) (*domain.Proof, error) {
	var updated *domain.Proof
	err := uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		proof, err := r.Proofs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !proof.OwnedBy(actor) {
			return domain.WrapError(domain.ErrInvalidInput, "update proof", fmt.Errorf("proof %d belongs to another user", id))
		}

		if change.Location != nil {
			proof.Location = *change.Location
		}
		if change.Date != nil {
			proof.Date = change.Date
		}
		if change.Currency != nil {
			proof.Currency = change.Currency
		}

		var location *domain.Location
		if proof.Location.LocationID != nil {
			location, err = r.Locations.GetByID(ctx, *proof.Location.LocationID)
			if err != nil && !domain.IsKind(err, domain.ErrLocationNotFound) {
				return fmt.Errorf("fetch location: %w", err)
			}
		}
		fe := validate.Proof(proof, validate.ProofContext{Location: location, Now: uc.now})
		if err := fe.AsError(); err != nil {
			return err
		}

		proof.UpdatedAt = uc.now().UTC()
		if err := r.Proofs.Update(ctx, proof); err != nil {
			return fmt.Errorf("update proof: %w", err)
		}

		if proof.Type.SingleShop() {
			if err := uc.cascadeToPrices(ctx, r, proof); err != nil {
				return err
			}
		}
		updated = proof
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// cascadeToPrices pushes the proof's shared location/date/currency onto all
// its prices. Moving a price between locations shifts the location counters
// by one on each side.
func (uc *ProofUseCase) cascadeToPrices(ctx context.Context, r ports.Repositories, proof *domain.Proof) error {
	prices, err := r.Prices.ListByProof(ctx, proof.ID)
	if err != nil {
		return fmt.Errorf("list proof prices: %w", err)
	}
	for i := range prices {
		price := &prices[i]

		oldLocationID := price.Location.LocationID
		newLocationID := proof.Location.LocationID
		if !sameOptionalID(oldLocationID, newLocationID) {
			if oldLocationID != nil {
				if err := r.Locations.AdjustPriceCount(ctx, *oldLocationID, -1); err != nil {
					return fmt.Errorf("adjust old location price_count: %w", err)
				}
			}
			if newLocationID != nil {
				if err := r.Locations.AdjustPriceCount(ctx, *newLocationID, +1); err != nil {
					return fmt.Errorf("adjust new location price_count: %w", err)
				}
			}
		}

		price.Location = proof.Location
		if proof.Date != nil {
			price.Date = *proof.Date
		}
		if proof.Currency != nil {
			price.Currency = *proof.Currency
		}
		price.UpdatedAt = uc.now().UTC()
		if err := r.Prices.Update(ctx, price); err != nil {
			return fmt.Errorf("cascade price %d: %w", price.ID, err)
		}
	}
	return nil
}

// Delete removes a proof that has no linked prices. Regions, receipt items
// and predictions cascade away with the row.
func (uc *ProofUseCase) Delete(ctx context.Context, id int64, actor *string) error {
	return uc.store.Within(ctx, func(ctx context.Context, r ports.Repositories) error {
		proof, err := r.Proofs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil && !proof.OwnedBy(actor) {
			return domain.WrapError(domain.ErrInvalidInput, "delete proof", fmt.Errorf("proof %d belongs to another user", id))
		}
		if !proof.Deletable() {
			return domain.WrapError(domain.ErrInvalidInput, "delete proof", fmt.Errorf("proof %d still has %d linked prices", id, proof.PriceCount))
		}
		return r.Proofs.Delete(ctx, id)
	})
}

func sameOptionalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "proof.bin"
	}
	return base
}
