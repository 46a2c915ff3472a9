package domain

import (
	"encoding/json"
	"time"
)

type PredictionType string

const (
	PredictionTypeClassification     PredictionType = "classification"
	PredictionTypeObjectDetection    PredictionType = "object_detection"
	PredictionTypePriceTagExtraction PredictionType = "price_tag_extraction"
	PredictionTypeReceiptExtraction  PredictionType = "receipt_extraction"
)

func (t PredictionType) Valid() bool {
	switch t {
	case PredictionTypeClassification, PredictionTypeObjectDetection,
		PredictionTypePriceTagExtraction, PredictionTypeReceiptExtraction:
		return true
	}
	return false
}

// ProofPrediction is one immutable ML output attached to a proof. Rows are
// never mutated after creation except by the explicit update-extraction
// operation, which replaces Data.
type ProofPrediction struct {
	ID            int64
	ProofID       int64
	Type          PredictionType
	ModelName     string
	ModelVersion  string
	SchemaVersion int
	Data          json.RawMessage
	Confidence    *float64
	CreatedAt     time.Time
}

// PriceTagPrediction is one structured-extraction output attached to a
// price tag region.
type PriceTagPrediction struct {
	ID            int64
	PriceTagID    int64
	Type          PredictionType
	ModelName     string
	ModelVersion  string
	SchemaVersion int
	Data          json.RawMessage
	Confidence    *float64
	CreatedAt     time.Time
}

// DetectedBox is one object-detection hit in the raw model payload.
type DetectedBox struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Score       float64     `json:"score"`
}

// BarcodeSuggestion is one ranked catalog candidate produced by barcode
// repair when an extracted barcode is invalid.
type BarcodeSuggestion struct {
	Code     string `json:"code"`
	Distance int    `json:"distance"`
}

// ExtractedPriceTag is the structured output of price-tag extraction for a
// single region. Price is kept as a json.Number so value comparison stays
// exact instead of going through float64.
type ExtractedPriceTag struct {
	Barcode            string              `json:"barcode,omitempty"`
	CategoryTag        string              `json:"category_tag,omitempty"`
	Price              json.Number         `json:"price,omitempty"`
	Currency           string              `json:"currency,omitempty"`
	ProductName        string              `json:"product_name,omitempty"`
	BarcodeSuggestions []BarcodeSuggestion `json:"barcode_suggestions,omitempty"`
}

// ExtractedReceiptItem is one line of the receipt-extraction output.
type ExtractedReceiptItem struct {
	ProductName string      `json:"product_name"`
	Price       json.Number `json:"price,omitempty"`
	Quantity    *int        `json:"quantity,omitempty"`
	// PredictedProductCode is an ingestion-time hint: the code of an
	// existing price at the same location whose product name matches
	// exactly. Never used as a matching criterion on its own.
	PredictedProductCode string `json:"predicted_product_code,omitempty"`
}
