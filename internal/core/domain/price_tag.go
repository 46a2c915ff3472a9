package domain

import (
	"errors"
	"fmt"
	"time"
)

// TagPredictionFoundProduct marks a region whose extracted barcode resolved
// to a known catalog product.
const TagPredictionFoundProduct = "prediction-found-product"

// TagStatus is the annotation state of a PriceTag or ReceiptItem. A nil
// *TagStatus means "unknown": the item exists but nobody has decided what
// it is yet. The source data keeps nil and the enum distinct, so both are
// preserved here.
type TagStatus int

const (
	TagStatusLinkedToPrice TagStatus = 1
	TagStatusNotReadable   TagStatus = 2
	TagStatusNotPriceTag   TagStatus = 3
	// TagStatusDeleted is a soft delete: the row survives so the
	// annotation history does.
	TagStatusDeleted TagStatus = 4
)

func (s TagStatus) Valid() bool {
	return s >= TagStatusLinkedToPrice && s <= TagStatusDeleted
}

func (s TagStatus) String() string {
	switch s {
	case TagStatusLinkedToPrice:
		return "linked_to_price"
	case TagStatusNotReadable:
		return "not_readable"
	case TagStatusNotPriceTag:
		return "not_price_tag"
	case TagStatusDeleted:
		return "deleted"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

var (
	errStatusRequiresPrice = errors.New("status linked_to_price requires a linked price")
	errStatusForbidsPrice  = errors.New("status other than linked_to_price forbids a linked price")
	errDeleteWhileLinked   = errors.New("cannot soft-delete while a price is linked")
)

// CheckStatusLink enforces the core invariant of the annotation state
// machine: status == linked_to_price iff a price id is set, and soft delete
// is forbidden while linked.
func CheckStatusLink(status *TagStatus, priceID *int64) error {
	switch {
	case status != nil && *status == TagStatusLinkedToPrice && priceID == nil:
		return errStatusRequiresPrice
	case priceID != nil && (status == nil || *status != TagStatusLinkedToPrice):
		return errStatusForbidsPrice
	case status != nil && *status == TagStatusDeleted && priceID != nil:
		return errDeleteWhileLinked
	}
	return nil
}

// BoundingBox is a detected region in normalized image coordinates,
// ordered y_min, x_min, y_max, x_max.
type BoundingBox [4]float64

func (b BoundingBox) YMin() float64 { return b[0] }
func (b BoundingBox) XMin() float64 { return b[1] }
func (b BoundingBox) YMax() float64 { return b[2] }
func (b BoundingBox) XMax() float64 { return b[3] }

func (b BoundingBox) Valid() bool {
	for _, v := range b {
		if v < 0 || v > 1 {
			return false
		}
	}
	return b.YMin() < b.YMax() && b.XMin() < b.XMax()
}

// PriceTag is one detected or hand-drawn rectangular region on a PRICE_TAG
// proof, corresponding to zero or one price.
type PriceTag struct {
	ID          int64
	ProofID     int64
	BoundingBox BoundingBox
	PriceID     *int64
	Status      *TagStatus

	// CreatedBy/UpdatedBy are nil when the tag was produced by the
	// detection pipeline rather than a user.
	CreatedBy *string
	UpdatedBy *string

	// Tags holds free-form annotation markers such as
	// "prediction-found-product".
	Tags []string

	PredictionCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether the tag currently points at a price.
func (t *PriceTag) Linked() bool {
	return t.PriceID != nil
}

// SystemGenerated reports whether the tag came from the detection pipeline.
func (t *PriceTag) SystemGenerated() bool {
	return t.CreatedBy == nil
}

// HardDeletable reports whether the row may be removed outright rather than
// soft-deleted. Only unlinked tags may vanish.
func (t *PriceTag) HardDeletable() bool {
	return t.PriceID == nil
}

// Unlink clears the price reference and resets the status to unknown. Used
// when the linked price is deleted.
func (t *PriceTag) Unlink() {
	t.PriceID = nil
	t.Status = nil
}

// LinkTo points the tag at a price and forces linked_to_price, the only
// status compatible with a set price id.
func (t *PriceTag) LinkTo(priceID int64) {
	status := TagStatusLinkedToPrice
	t.PriceID = &priceID
	t.Status = &status
}
