package domain

import "time"

type ProofType string

const (
	ProofTypePriceTag    ProofType = "PRICE_TAG"
	ProofTypeReceipt     ProofType = "RECEIPT"
	ProofTypeGDPRRequest ProofType = "GDPR_REQUEST"
	ProofTypeShopImport  ProofType = "SHOP_IMPORT"
)

func (t ProofType) Valid() bool {
	switch t {
	case ProofTypePriceTag, ProofTypeReceipt, ProofTypeGDPRRequest, ProofTypeShopImport:
		return true
	}
	return false
}

// SingleShop reports whether every price linked to a proof of this type
// shares the proof's location, date and currency.
func (t ProofType) SingleShop() bool {
	return t == ProofTypePriceTag || t == ProofTypeReceipt
}

// AnnotatableByAnyUser reports whether users other than the proof owner may
// attach prices to it. Price tag photos are annotated collaboratively.
func (t ProofType) AnnotatableByAnyUser() bool {
	return t == ProofTypePriceTag
}

// LocationRef identifies where an observation was made: either an internal
// location id, an OSM id+type pair, or nothing. The OSM id and type are set
// together or not at all.
type LocationRef struct {
	LocationID *int64
	OSMID      *int64
	OSMType    *string
}

func (l LocationRef) HasOSM() bool {
	return l.OSMID != nil && l.OSMType != nil
}

func (l LocationRef) Empty() bool {
	return l.LocationID == nil && l.OSMID == nil && l.OSMType == nil
}

// Location is the resolved location record referenced by proofs and prices.
type Location struct {
	ID         int64
	OSMID      *int64
	OSMType    *string
	WebsiteURL *string
	PriceCount int
}

// Proof is one piece of photographic evidence: a price tag photo, a receipt,
// a GDPR data export or a shop import.
type Proof struct {
	ID       int64
	Type     ProofType
	Location LocationRef
	Date     *time.Time
	Currency *string
	// Owner is the submitting user id; nil means anonymous.
	Owner *string
	// FilePath is the content-store key of the uploaded image.
	FilePath string
	MimeType string
	// ContentHash is the hex MD5 of the image bytes, used by upload dedup.
	ContentHash string

	PriceCount      int
	PredictionCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deletable reports whether the proof may be hard-deleted. Proofs with
// linked prices must keep their evidence.
func (p *Proof) Deletable() bool {
	return p.PriceCount == 0
}

// OwnedBy reports whether owner (possibly nil for anonymous) owns the proof.
func (p *Proof) OwnedBy(owner *string) bool {
	if p.Owner == nil || owner == nil {
		return p.Owner == nil && owner == nil
	}
	return *p.Owner == *owner
}
