package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crowdprices/evidence/internal/core/domain"
)

func newPrices(s *memStore) *PriceUseCase {
	return NewPriceUseCase(s, &fakeResolver{})
}

func validProductPrice(owner string) *domain.Price {
	return &domain.Price{
		ProductCode: strPtr("3017620422003"),
		Amount:      decimal.RequireFromString("3.49"),
		Currency:    "EUR",
		Date:        time.Now().Add(-24 * time.Hour),
		Owner:       strPtr(owner),
	}
}

func TestCreateTagsDuplicateAgainstLowestID(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	first, err := uc.Create(context.Background(), validProductPrice("alice"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if first.DuplicateOf != nil {
		t.Fatalf("first observation must be canonical, got duplicate_of %d", *first.DuplicateOf)
	}

	second, err := uc.Create(context.Background(), validProductPrice("bob"))
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.DuplicateOf == nil || *second.DuplicateOf != first.ID {
		t.Fatalf("second duplicate_of = %v, want %d", second.DuplicateOf, first.ID)
	}

	third, err := uc.Create(context.Background(), validProductPrice("carol"))
	if err != nil {
		t.Fatalf("third create: %v", err)
	}
	if third.DuplicateOf == nil || *third.DuplicateOf != first.ID {
		t.Fatalf("third duplicate_of = %v, want canonical %d, not chain member", third.DuplicateOf, first.ID)
	}
}

func TestCreateDifferentAmountIsNotDuplicate(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	if _, err := uc.Create(context.Background(), validProductPrice("alice")); err != nil {
		t.Fatal(err)
	}
	other := validProductPrice("bob")
	other.Amount = decimal.RequireFromString("3.99")
	created, err := uc.Create(context.Background(), other)
	if err != nil {
		t.Fatal(err)
	}
	if created.DuplicateOf != nil {
		t.Errorf("different amount must not be tagged duplicate")
	}
}

func TestCreateValidationFailureWritesNothing(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	bad := validProductPrice("alice")
	bad.CategoryTag = strPtr("en:apples") // violates the product/category XOR

	_, err := uc.Create(context.Background(), bad)
	verr, ok := domain.AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, found := verr.Fields["product_code"]; !found {
		t.Errorf("fields = %v, want product_code violation", verr.Fields)
	}
	if len(store.prices) != 0 {
		t.Errorf("prices persisted = %d, want 0", len(store.prices))
	}
	if store.userCounts["alice"] != 0 {
		t.Errorf("user counter moved on failed create")
	}
}

func TestCreateUpdatesAllCounters(t *testing.T) {
	store := newMemStore()
	loc := store.addLocation(domain.Location{})
	store.addProduct("3017620422003", "Hazelnut Spread")

	proof := &domain.Proof{
		Type:     domain.ProofTypePriceTag,
		Location: domain.LocationRef{LocationID: &loc.ID},
		Currency: strPtr("EUR"),
	}
	if err := store.Repos().Proofs.Create(context.Background(), proof); err != nil {
		t.Fatal(err)
	}

	uc := newPrices(store)
	price := validProductPrice("alice")
	price.ProofID = &proof.ID
	price.Location = proof.Location
	if _, err := uc.Create(context.Background(), price); err != nil {
		t.Fatalf("create: %v", err)
	}

	if store.userCounts["alice"] != 1 {
		t.Errorf("user count = %d, want 1", store.userCounts["alice"])
	}
	if store.productCounts["3017620422003"] != 1 {
		t.Errorf("product count = %d, want 1", store.productCounts["3017620422003"])
	}
	gotProof, _ := store.Repos().Proofs.GetByID(context.Background(), proof.ID)
	if gotProof.PriceCount != 1 {
		t.Errorf("proof price_count = %d, want 1", gotProof.PriceCount)
	}
	gotLoc, _ := store.Repos().Locations.GetByID(context.Background(), loc.ID)
	if gotLoc.PriceCount != 1 {
		t.Errorf("location price_count = %d, want 1", gotLoc.PriceCount)
	}
}

func TestUpdateRejectsForeignOwner(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	created, err := uc.Create(context.Background(), validProductPrice("alice"))
	if err != nil {
		t.Fatal(err)
	}

	amount := decimal.RequireFromString("4.99")
	_, err = uc.Update(context.Background(), created.ID, strPtr("mallory"), PriceUpdate{Amount: &amount})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid-input ownership rejection", err)
	}

	// nil actor is a moderator and may edit anything.
	updated, err := uc.Update(context.Background(), created.ID, nil, PriceUpdate{Amount: &amount})
	if err != nil {
		t.Fatalf("moderator update: %v", err)
	}
	if !updated.Amount.Equal(amount) {
		t.Errorf("amount = %s, want %s", updated.Amount, amount)
	}
}

func TestUpdateClearsDiscountFields(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	price := validProductPrice("alice")
	price.IsDiscounted = true
	without := decimal.RequireFromString("4.99")
	price.AmountWithoutDiscount = &without
	dt := domain.DiscountTypeSale
	price.DiscountType = &dt
	created, err := uc.Create(context.Background(), price)
	if err != nil {
		t.Fatal(err)
	}

	isDiscounted := false
	updated, err := uc.Update(context.Background(), created.ID, strPtr("alice"), PriceUpdate{
		IsDiscounted:         &isDiscounted,
		ClearWithoutDiscount: true,
		ClearDiscountType:    true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsDiscounted || updated.AmountWithoutDiscount != nil || updated.DiscountType != nil {
		t.Errorf("discount fields not cleared: %+v", updated)
	}
}

func TestUpdateRejectsDiscountInconsistency(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	created, err := uc.Create(context.Background(), validProductPrice("alice"))
	if err != nil {
		t.Fatal(err)
	}

	// price_without_discount on a non-discounted price must fail.
	without := decimal.RequireFromString("4.99")
	_, err = uc.Update(context.Background(), created.ID, strPtr("alice"), PriceUpdate{AmountWithoutDiscount: &without})
	verr, ok := domain.AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, found := verr.Fields["price_without_discount"]; !found {
		t.Errorf("fields = %v, want price_without_discount violation", verr.Fields)
	}
}

func TestDeleteUnwindsEverySideEffect(t *testing.T) {
	store := newMemStore()
	loc := store.addLocation(domain.Location{})
	store.addProduct("3017620422003", "Hazelnut Spread")
	proof := &domain.Proof{
		Type:     domain.ProofTypePriceTag,
		Location: domain.LocationRef{LocationID: &loc.ID},
	}
	if err := store.Repos().Proofs.Create(context.Background(), proof); err != nil {
		t.Fatal(err)
	}

	uc := newPrices(store)
	price := validProductPrice("alice")
	price.ProofID = &proof.ID
	price.Location = proof.Location
	created, err := uc.Create(context.Background(), price)
	if err != nil {
		t.Fatal(err)
	}
	duplicate, err := uc.Create(context.Background(), func() *domain.Price {
		p := validProductPrice("bob")
		p.ProofID = &proof.ID
		p.Location = proof.Location
		return p
	}())
	if err != nil {
		t.Fatal(err)
	}
	if duplicate.DuplicateOf == nil || *duplicate.DuplicateOf != created.ID {
		t.Fatalf("setup: second price should duplicate the first")
	}

	tag := &domain.PriceTag{ProofID: proof.ID, BoundingBox: domain.BoundingBox{0.1, 0.1, 0.5, 0.5}}
	if err := store.Repos().PriceTags.Create(context.Background(), tag); err != nil {
		t.Fatal(err)
	}
	stored, _ := store.Repos().PriceTags.GetByID(context.Background(), tag.ID)
	stored.LinkTo(created.ID)
	if err := store.Repos().PriceTags.Update(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	if err := uc.Delete(context.Background(), created.ID, strPtr("alice")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Repos().Prices.GetByID(context.Background(), created.ID); !domain.IsKind(err, domain.ErrPriceNotFound) {
		t.Errorf("price still present after delete")
	}
	unlinked, _ := store.Repos().PriceTags.GetByID(context.Background(), tag.ID)
	if unlinked.PriceID != nil || unlinked.Status != nil {
		t.Errorf("tag not reset to unknown: priceID=%v status=%v", unlinked.PriceID, unlinked.Status)
	}
	survivor, _ := store.Repos().Prices.GetByID(context.Background(), duplicate.ID)
	if survivor.DuplicateOf != nil {
		t.Errorf("duplicate_of still points at deleted canonical")
	}
	if store.userCounts["alice"] != 0 {
		t.Errorf("alice count = %d, want 0", store.userCounts["alice"])
	}
	gotProof, _ := store.Repos().Proofs.GetByID(context.Background(), proof.ID)
	if gotProof.PriceCount != 1 {
		t.Errorf("proof price_count = %d, want 1 (bob's price remains)", gotProof.PriceCount)
	}
}

func TestDeleteRejectsForeignOwner(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)
	created, err := uc.Create(context.Background(), validProductPrice("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if err := uc.Delete(context.Background(), created.ID, strPtr("mallory")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid-input ownership rejection", err)
	}
}

func TestCreateCategoryPriceCanonicalizesTags(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{canonical: map[string]string{
		"fr:pommes": "en:apples",
		"fr:bio":    "en:organic",
	}}
	uc := NewPriceUseCase(store, resolver)

	per := domain.PricePerKilogram
	price := &domain.Price{
		CategoryTag: strPtr("fr:pommes"),
		LabelsTags:  []string{"fr:bio"},
		PricePer:    &per,
		Amount:      decimal.RequireFromString("2.49"),
		Currency:    "EUR",
		Date:        time.Now().Add(-time.Hour),
	}
	created, err := uc.Create(context.Background(), price)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if *created.CategoryTag != "en:apples" {
		t.Errorf("category = %q, want canonical en:apples", *created.CategoryTag)
	}
	if created.LabelsTags[0] != "en:organic" {
		t.Errorf("label = %q, want canonical en:organic", created.LabelsTags[0])
	}
}

func TestCreateCategoryPriceRequiresPricePer(t *testing.T) {
	store := newMemStore()
	uc := newPrices(store)

	price := &domain.Price{
		CategoryTag: strPtr("en:apples"),
		Amount:      decimal.RequireFromString("2.49"),
		Currency:    "EUR",
		Date:        time.Now().Add(-time.Hour),
	}
	_, err := uc.Create(context.Background(), price)
	verr, ok := domain.AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want validation error", err)
	}
	if _, found := verr.Fields["price_per"]; !found {
		t.Errorf("fields = %v, want price_per violation", verr.Fields)
	}
}
