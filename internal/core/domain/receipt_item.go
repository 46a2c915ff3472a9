package domain

import (
	"encoding/json"
	"time"
)

// ReceiptItemSchemaVersion is stamped on newly created receipt items so the
// shape of PredictedData can evolve.
const ReceiptItemSchemaVersion = 1

// ReceiptItem is one parsed line of a RECEIPT proof, keyed by its 1-based
// position on the receipt.
type ReceiptItem struct {
	ID      int64
	ProofID int64
	PriceID *int64
	// Order is the 1-based position of the line on the receipt.
	Order int
	// PredictedData is the raw structured line emitted by receipt
	// extraction, possibly enriched with a predicted_product_code hint.
	PredictedData json.RawMessage
	Status        *TagStatus
	SchemaVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *ReceiptItem) Linked() bool {
	return i.PriceID != nil
}

func (i *ReceiptItem) Unlink() {
	i.PriceID = nil
	i.Status = nil
}

func (i *ReceiptItem) LinkTo(priceID int64) {
	status := TagStatusLinkedToPrice
	i.PriceID = &priceID
	i.Status = &status
}
