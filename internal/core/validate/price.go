package validate

import (
	"context"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// PriceContext carries the pre-fetched collaborator state one price
// validation needs. The caller resolves referenced rows; validation itself
// never touches storage.
type PriceContext struct {
	// Proof is the referenced proof, nil when the price has none.
	Proof *domain.Proof
	// Location is the record behind price.Location.LocationID, nil when
	// the price carries no internal location id.
	Location *domain.Location
	Now      func() time.Time
	// IsUpdate skips creation-only rules (single-shop consistency).
	IsUpdate bool
}

// Price checks a price against every field rule and normalizes its taxonomy
// tags in place. A non-nil error means a collaborator failed and validation
// could not complete; field violations are reported through the map.
func Price(ctx context.Context, resolver ports.TaxonomyResolver, price *domain.Price, pc PriceContext) (domain.FieldErrors, error) {
	fe := domain.FieldErrors{}

	if err := checkPriceKind(ctx, resolver, price, fe); err != nil {
		return nil, err
	}
	checkPriceAmounts(price, fe)
	checkPriceDate(price, pc, fe)
	checkPriceCurrency(price, fe)
	checkPriceLocation(price, pc, fe)
	checkPriceProof(price, pc, fe)

	return fe, nil
}

func checkPriceKind(ctx context.Context, resolver ports.TaxonomyResolver, price *domain.Price, fe domain.FieldErrors) error {
	hasCode := price.ProductCode != nil
	hasCategory := price.CategoryTag != nil

	switch {
	case hasCode && hasCategory:
		fe.Add("product_code", "product_code and category_tag are mutually exclusive")
		fe.Add("category_tag", "product_code and category_tag are mutually exclusive")
		return nil
	case !hasCode && !hasCategory:
		fe.Add("product_code", "either product_code or category_tag is required")
		return nil
	}

	if hasCode {
		code := *price.ProductCode
		if !isAlnum(code) {
			fe.Add("product_code", "must be alphanumeric")
		} else if isBooleanLike(code) {
			fe.Add("product_code", "looks like a serialized boolean, not a barcode")
		}
		if price.PricePer != nil {
			fe.Add("price_per", "forbidden for product prices")
		}
		if len(price.LabelsTags) > 0 {
			fe.Add("labels_tags", "only valid for category prices")
		}
		if len(price.OriginsTags) > 0 {
			fe.Add("origins_tags", "only valid for category prices")
		}
		return nil
	}

	// Category price: canonicalize the tag and its qualifiers. The
	// normalized values are written back so the caller persists them.
	canonical, err := resolveTag(ctx, resolver, ports.TaxonomyCategory, *price.CategoryTag, "category_tag", fe)
	if err != nil {
		return err
	}
	if canonical != "" {
		*price.CategoryTag = canonical
	}

	if price.PricePer == nil {
		fe.Add("price_per", "required for category prices")
	} else if !price.PricePer.Valid() {
		fe.Add("price_per", "must be UNIT or KILOGRAM")
	}

	if err := resolveTagList(ctx, resolver, ports.TaxonomyLabel, price.LabelsTags, "labels_tags", fe); err != nil {
		return err
	}
	if err := resolveTagList(ctx, resolver, ports.TaxonomyOrigin, price.OriginsTags, "origins_tags", fe); err != nil {
		return err
	}
	return nil
}

func resolveTag(ctx context.Context, resolver ports.TaxonomyResolver, taxonomy ports.TaxonomyDomain, value, field string, fe domain.FieldErrors) (string, error) {
	canonical, err := resolver.Resolve(ctx, taxonomy, value)
	if err == nil {
		return canonical, nil
	}
	if domain.IsKind(err, domain.ErrUnknownLanguagePrefix) || domain.IsKind(err, domain.ErrInvalidInput) {
		fe.Add(field, "invalid tag: "+value)
		return "", nil
	}
	return "", domain.WrapError(domain.ErrExternalService, "resolve "+string(taxonomy)+" tag", err)
}

func resolveTagList(ctx context.Context, resolver ports.TaxonomyResolver, taxonomy ports.TaxonomyDomain, values []string, field string, fe domain.FieldErrors) error {
	for i, value := range values {
		canonical, err := resolveTag(ctx, resolver, taxonomy, value, field, fe)
		if err != nil {
			return err
		}
		if canonical != "" {
			values[i] = canonical
		}
	}
	return nil
}

func checkPriceAmounts(price *domain.Price, fe domain.FieldErrors) {
	if price.Amount.IsNegative() {
		fe.Add("price", "must not be negative")
	}

	if price.AmountWithoutDiscount != nil {
		if !price.IsDiscounted {
			fe.Add("price_without_discount", "requires price_is_discounted")
		} else if !price.AmountWithoutDiscount.GreaterThan(price.Amount) {
			fe.Add("price_without_discount", "must exceed the discounted price")
		}
	}
	if price.DiscountType != nil {
		if !price.IsDiscounted {
			fe.Add("discount_type", "requires price_is_discounted")
		} else if !price.DiscountType.Valid() {
			fe.Add("discount_type", "unknown discount type")
		}
	}
}

func checkPriceDate(price *domain.Price, pc PriceContext, fe domain.FieldErrors) {
	if price.Date.IsZero() {
		fe.Add("date", "required")
		return
	}
	now := time.Now()
	if pc.Now != nil {
		now = pc.Now()
	}
	if price.Date.After(now) && !sameDay(price.Date, now) {
		fe.Add("date", "must not be in the future")
	}
}

func checkPriceCurrency(price *domain.Price, fe domain.FieldErrors) {
	if !isCurrency(price.Currency) {
		fe.Add("currency", "must be a 3-letter ISO 4217 code")
	}
}

func checkPriceLocation(price *domain.Price, pc PriceContext, fe domain.FieldErrors) {
	loc := price.Location
	if (loc.OSMID == nil) != (loc.OSMType == nil) {
		fe.Add("location_osm_id", "location_osm_id and location_osm_type must be set together")
		return
	}

	if loc.LocationID == nil {
		return
	}
	if pc.Location == nil {
		fe.Add("location_id", "location not found")
		return
	}
	// An internal id and an OSM pair may both be supplied, but they must
	// name the same place.
	if loc.HasOSM() {
		if pc.Location.OSMID == nil || pc.Location.OSMType == nil ||
			*pc.Location.OSMID != *loc.OSMID || *pc.Location.OSMType != *loc.OSMType {
			fe.Add("location_osm_id", "conflicts with the OSM identity of location_id")
		}
	}
}

func checkPriceProof(price *domain.Price, pc PriceContext, fe domain.FieldErrors) {
	if price.ProofID == nil {
		if price.ReceiptQuantity != nil {
			fe.Add("receipt_quantity", "only valid with a receipt proof")
		}
		return
	}
	proof := pc.Proof
	if proof == nil {
		fe.Add("proof_id", "proof not found")
		return
	}

	if !proof.OwnedBy(price.Owner) && !proof.Type.AnnotatableByAnyUser() {
		fe.Add("proof_id", "proof belongs to another user")
	}

	if price.ReceiptQuantity != nil {
		if proof.Type != domain.ProofTypeReceipt {
			fe.Add("receipt_quantity", "only valid with a receipt proof")
		} else if *price.ReceiptQuantity < 1 {
			fe.Add("receipt_quantity", "must be at least 1")
		}
	}

	// Single-shop proofs share one location, date and currency across all
	// their prices. Updates may legitimately lag behind a proof correction
	// cascade, so the rule only binds at creation.
	if pc.IsUpdate || !proof.Type.SingleShop() {
		return
	}
	if proof.Date != nil && !sameDay(price.Date, *proof.Date) {
		fe.Add("date", "must match the proof date")
	}
	if proof.Currency != nil && price.Currency != *proof.Currency {
		fe.Add("currency", "must match the proof currency")
	}
	if !sameLocation(price.Location, proof.Location) {
		fe.Add("location_id", "must match the proof location")
	}
}

func sameLocation(a, b domain.LocationRef) bool {
	switch {
	case a.LocationID != nil && b.LocationID != nil:
		return *a.LocationID == *b.LocationID
	case a.HasOSM() && b.HasOSM():
		return *a.OSMID == *b.OSMID && *a.OSMType == *b.OSMType
	}
	return a.Empty() && b.Empty()
}
