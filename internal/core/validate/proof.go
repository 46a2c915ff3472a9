package validate

import (
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
)

// ProofContext carries collaborator state for proof validation.
type ProofContext struct {
	// Location is the record behind proof.Location.LocationID, nil when
	// the proof carries no internal location id.
	Location *domain.Location
	Now      func() time.Time
}

// Proof checks a proof's own field rules. Proof dates tolerate one day of
// clock skew because uploads cross time zones.
func Proof(proof *domain.Proof, pc ProofContext) domain.FieldErrors {
	fe := domain.FieldErrors{}

	if !proof.Type.Valid() {
		fe.Add("type", "unknown proof type")
	}

	loc := proof.Location
	if (loc.OSMID == nil) != (loc.OSMType == nil) {
		fe.Add("location_osm_id", "location_osm_id and location_osm_type must be set together")
	} else if loc.LocationID != nil && loc.HasOSM() && pc.Location != nil {
		if pc.Location.OSMID == nil || pc.Location.OSMType == nil ||
			*pc.Location.OSMID != *loc.OSMID || *pc.Location.OSMType != *loc.OSMType {
			fe.Add("location_osm_id", "conflicts with the OSM identity of location_id")
		}
	}
	if loc.LocationID != nil && pc.Location == nil {
		fe.Add("location_id", "location not found")
	}

	if proof.Date != nil {
		now := time.Now()
		if pc.Now != nil {
			now = pc.Now()
		}
		if proof.Date.After(now.Add(proofDateLeniency)) {
			fe.Add("date", "must not be in the future")
		}
	}

	if proof.Currency != nil && !isCurrency(*proof.Currency) {
		fe.Add("currency", "must be a 3-letter ISO 4217 code")
	}

	// Single-shop proof types need the shared fields their prices inherit.
	if proof.Type.SingleShop() {
		if proof.Date == nil {
			fe.Add("date", "required for this proof type")
		}
		if proof.Currency == nil {
			fe.Add("currency", "required for this proof type")
		}
	}

	return fe
}
