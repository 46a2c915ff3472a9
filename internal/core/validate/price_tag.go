package validate

import (
	"github.com/crowdprices/evidence/internal/core/domain"
)

// PriceTagContext carries collaborator state for price tag validation.
type PriceTagContext struct {
	// Proof is the tag's owning proof; required.
	Proof *domain.Proof
	// LinkedPrice is the price behind tag.PriceID, nil when unlinked.
	LinkedPrice *domain.Price
}

// PriceTag checks a price tag region against its proof and link invariants.
func PriceTag(tag *domain.PriceTag, tc PriceTagContext) domain.FieldErrors {
	fe := domain.FieldErrors{}

	if !tag.BoundingBox.Valid() {
		fe.Add("bounding_box", "coordinates must satisfy 0 <= y_min < y_max <= 1 and 0 <= x_min < x_max <= 1")
	}

	if tc.Proof == nil {
		fe.Add("proof_id", "proof not found")
	} else if tc.Proof.Type != domain.ProofTypePriceTag {
		fe.Add("proof_id", "price tags only belong to PRICE_TAG proofs")
	}

	checkTagLink(tag.Status, tag.PriceID, tc, fe)
	return fe
}

// ReceiptItem checks a parsed receipt line against its proof and link
// invariants.
func ReceiptItem(item *domain.ReceiptItem, tc PriceTagContext) domain.FieldErrors {
	fe := domain.FieldErrors{}

	if item.Order < 1 {
		fe.Add("order", "must be a 1-based receipt position")
	}

	if tc.Proof == nil {
		fe.Add("proof_id", "proof not found")
	} else if tc.Proof.Type != domain.ProofTypeReceipt {
		fe.Add("proof_id", "receipt items only belong to RECEIPT proofs")
	}

	checkTagLink(item.Status, item.PriceID, tc, fe)
	return fe
}

func checkTagLink(status *domain.TagStatus, priceID *int64, tc PriceTagContext, fe domain.FieldErrors) {
	if status != nil && !status.Valid() {
		fe.Add("status", "unknown status")
	}
	if err := domain.CheckStatusLink(status, priceID); err != nil {
		fe.Add("status", err.Error())
	}
	if priceID == nil {
		return
	}
	if tc.LinkedPrice == nil {
		fe.Add("price_id", "price not found")
		return
	}
	// A linked price must sit on the same proof as the region or line
	// pointing at it.
	if tc.Proof != nil {
		if tc.LinkedPrice.ProofID == nil || *tc.LinkedPrice.ProofID != tc.Proof.ID {
			fe.Add("price_id", "price does not belong to the same proof")
		}
	}
}
