package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceKind string

const (
	// PriceKindProduct keys the price by product barcode.
	PriceKindProduct PriceKind = "PRODUCT"
	// PriceKindCategory keys the price by a canonical taxonomy tag
	// (raw products such as fruit and vegetables).
	PriceKindCategory PriceKind = "CATEGORY"
)

type PricePer string

const (
	PricePerUnit     PricePer = "UNIT"
	PricePerKilogram PricePer = "KILOGRAM"
)

func (p PricePer) Valid() bool {
	return p == PricePerUnit || p == PricePerKilogram
}

type DiscountType string

const (
	DiscountTypeQuantity       DiscountType = "QUANTITY"
	DiscountTypeSale           DiscountType = "SALE"
	DiscountTypeSeasonal       DiscountType = "SEASONAL"
	DiscountTypeLoyaltyProgram DiscountType = "LOYALTY_PROGRAM"
	DiscountTypeExpiresSoon    DiscountType = "EXPIRES_SOON"
	DiscountTypeSecondHand     DiscountType = "SECOND_HAND"
	DiscountTypeOther          DiscountType = "OTHER"
)

func (d DiscountType) Valid() bool {
	switch d {
	case DiscountTypeQuantity, DiscountTypeSale, DiscountTypeSeasonal,
		DiscountTypeLoyaltyProgram, DiscountTypeExpiresSoon,
		DiscountTypeSecondHand, DiscountTypeOther:
		return true
	}
	return false
}

// Price is one observed price of a product or category at a location on a
// date, optionally backed by a proof.
type Price struct {
	ID int64

	// Exactly one of ProductCode and CategoryTag is set; ProductCode makes
	// the price a PRODUCT price, CategoryTag a CATEGORY price.
	ProductCode *string
	CategoryTag *string
	// LabelsTags and OriginsTags qualify CATEGORY prices only.
	LabelsTags  []string
	OriginsTags []string
	// PricePer is required for CATEGORY prices, forbidden otherwise.
	PricePer *PricePer

	Amount                decimal.Decimal
	IsDiscounted          bool
	AmountWithoutDiscount *decimal.Decimal
	DiscountType          *DiscountType

	Currency string
	Date     time.Time
	Location LocationRef

	ProofID *int64
	Owner   *string

	// ReceiptQuantity is only meaningful when the proof is a receipt.
	ReceiptQuantity *int

	// DuplicateOf points at the canonical (earliest-created) price when
	// another submission reported the same observation. Informational:
	// duplicates are recorded, never rejected.
	DuplicateOf *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Price) Kind() PriceKind {
	if p.CategoryTag != nil {
		return PriceKindCategory
	}
	return PriceKindProduct
}

func (p *Price) OwnedBy(owner *string) bool {
	if p.Owner == nil || owner == nil {
		return p.Owner == nil && owner == nil
	}
	return *p.Owner == *owner
}
