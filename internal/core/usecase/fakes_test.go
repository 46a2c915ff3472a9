package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// memStore is an in-memory ports.Store. Within runs the callback against the
// shared state directly; tests that need rollback semantics assert that the
// failing path errors before any write instead.
type memStore struct {
	nextID int64

	proofs    map[int64]*domain.Proof
	prices    map[int64]*domain.Price
	tags      map[int64]*domain.PriceTag
	items     map[int64]*domain.ReceiptItem
	proofPred map[int64]*domain.ProofPrediction
	tagPred   map[int64]*domain.PriceTagPrediction
	locations map[int64]*domain.Location

	productNames  map[string]string
	productCounts map[string]int
	userCounts    map[string]int

	// failProofCreate makes the next proof insert fail, for tests covering
	// the upload failure path.
	failProofCreate bool
}

func newMemStore() *memStore {
	return &memStore{
		proofs:        map[int64]*domain.Proof{},
		prices:        map[int64]*domain.Price{},
		tags:          map[int64]*domain.PriceTag{},
		items:         map[int64]*domain.ReceiptItem{},
		proofPred:     map[int64]*domain.ProofPrediction{},
		tagPred:       map[int64]*domain.PriceTagPrediction{},
		locations:     map[int64]*domain.Location{},
		productNames:  map[string]string{},
		productCounts: map[string]int{},
		userCounts:    map[string]int{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) Repos() ports.Repositories {
	return ports.Repositories{
		Proofs:       &memProofRepo{s},
		Prices:       &memPriceRepo{s},
		PriceTags:    &memPriceTagRepo{s},
		ReceiptItems: &memReceiptItemRepo{s},
		Predictions:  &memPredictionRepo{s},
		Locations:    &memLocationRepo{s},
		Products:     &memProductRepo{s},
		Users:        &memUserRepo{s},
	}
}

func (s *memStore) Within(ctx context.Context, fn func(ctx context.Context, r ports.Repositories) error) error {
	return fn(ctx, s.Repos())
}

func (s *memStore) addLocation(loc domain.Location) *domain.Location {
	loc.ID = s.id()
	s.locations[loc.ID] = &loc
	return &loc
}

func (s *memStore) addProduct(code, name string) {
	s.productNames[code] = name
}

func sameStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

type memProofRepo struct{ s *memStore }

func (r *memProofRepo) Create(_ context.Context, proof *domain.Proof) error {
	if r.s.failProofCreate {
		return fmt.Errorf("insert proof: connection reset")
	}
	proof.ID = r.s.id()
	clone := *proof
	r.s.proofs[proof.ID] = &clone
	return nil
}

func (r *memProofRepo) GetByID(_ context.Context, id int64) (*domain.Proof, error) {
	proof, ok := r.s.proofs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrProofNotFound, "get proof", fmt.Errorf("id %d", id))
	}
	clone := *proof
	return &clone, nil
}

func (r *memProofRepo) FindByUploadKey(_ context.Context, owner *string, contentHash string, proofType domain.ProofType, location domain.LocationRef, date *time.Time) (*domain.Proof, error) {
	for _, proof := range r.s.proofs {
		if sameStr(proof.Owner, owner) && proof.ContentHash == contentHash &&
			proof.Type == proofType && sameID(proof.Location.LocationID, location.LocationID) &&
			sameDate(proof.Date, date) {
			clone := *proof
			return &clone, nil
		}
	}
	return nil, domain.WrapError(domain.ErrProofNotFound, "find by upload key", fmt.Errorf("no match"))
}

func (r *memProofRepo) FindDuplicates(_ context.Context, ref *domain.Proof, md5Check bool) ([]domain.Proof, error) {
	var out []domain.Proof
	for _, proof := range r.s.proofs {
		if proof.ID == ref.ID {
			continue
		}
		if !sameStr(proof.Owner, ref.Owner) || proof.Type != ref.Type ||
			!sameDate(proof.Date, ref.Date) || !sameID(proof.Location.LocationID, ref.Location.LocationID) {
			continue
		}
		if md5Check && proof.ContentHash != ref.ContentHash {
			continue
		}
		out = append(out, *proof)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProofRepo) Update(_ context.Context, proof *domain.Proof) error {
	stored, ok := r.s.proofs[proof.ID]
	if !ok {
		return domain.WrapError(domain.ErrProofNotFound, "update proof", fmt.Errorf("id %d", proof.ID))
	}
	clone := *proof
	clone.PriceCount = stored.PriceCount
	clone.PredictionCount = stored.PredictionCount
	r.s.proofs[proof.ID] = &clone
	return nil
}

func (r *memProofRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.s.proofs[id]; !ok {
		return domain.WrapError(domain.ErrProofNotFound, "delete proof", fmt.Errorf("id %d", id))
	}
	delete(r.s.proofs, id)
	for tagID, tag := range r.s.tags {
		if tag.ProofID == id {
			delete(r.s.tags, tagID)
		}
	}
	for itemID, item := range r.s.items {
		if item.ProofID == id {
			delete(r.s.items, itemID)
		}
	}
	for predID, pred := range r.s.proofPred {
		if pred.ProofID == id {
			delete(r.s.proofPred, predID)
		}
	}
	return nil
}

func (r *memProofRepo) AdjustPriceCount(_ context.Context, id int64, delta int) error {
	proof, ok := r.s.proofs[id]
	if !ok {
		return domain.WrapError(domain.ErrProofNotFound, "adjust proof price count", fmt.Errorf("id %d", id))
	}
	proof.PriceCount = clamp(proof.PriceCount + delta)
	return nil
}

func (r *memProofRepo) ListUnprocessed(_ context.Context, afterID int64, limit int) ([]domain.Proof, error) {
	var out []domain.Proof
	for _, proof := range r.s.proofs {
		if proof.ID <= afterID || proof.PredictionCount != 0 {
			continue
		}
		if proof.Type != domain.ProofTypePriceTag && proof.Type != domain.ProofTypeReceipt {
			continue
		}
		out = append(out, *proof)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memProofRepo) AdjustPredictionCount(_ context.Context, id int64, delta int) error {
	proof, ok := r.s.proofs[id]
	if !ok {
		return domain.WrapError(domain.ErrProofNotFound, "adjust proof prediction count", fmt.Errorf("id %d", id))
	}
	proof.PredictionCount = clamp(proof.PredictionCount + delta)
	return nil
}

func (r *memProofRepo) RecountAll(_ context.Context) error {
	for _, proof := range r.s.proofs {
		proof.PriceCount = 0
		proof.PredictionCount = 0
	}
	for _, price := range r.s.prices {
		if price.ProofID != nil {
			if proof, ok := r.s.proofs[*price.ProofID]; ok {
				proof.PriceCount++
			}
		}
	}
	for _, pred := range r.s.proofPred {
		if proof, ok := r.s.proofs[pred.ProofID]; ok {
			proof.PredictionCount++
		}
	}
	return nil
}

type memPriceRepo struct{ s *memStore }

func (r *memPriceRepo) Create(_ context.Context, price *domain.Price) error {
	price.ID = r.s.id()
	clone := *price
	r.s.prices[price.ID] = &clone
	return nil
}

func (r *memPriceRepo) GetByID(_ context.Context, id int64) (*domain.Price, error) {
	price, ok := r.s.prices[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrPriceNotFound, "get price", fmt.Errorf("id %d", id))
	}
	clone := *price
	return &clone, nil
}

func (r *memPriceRepo) Update(_ context.Context, price *domain.Price) error {
	if _, ok := r.s.prices[price.ID]; !ok {
		return domain.WrapError(domain.ErrPriceNotFound, "update price", fmt.Errorf("id %d", price.ID))
	}
	clone := *price
	r.s.prices[price.ID] = &clone
	return nil
}

func (r *memPriceRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.s.prices[id]; !ok {
		return domain.WrapError(domain.ErrPriceNotFound, "delete price", fmt.Errorf("id %d", id))
	}
	delete(r.s.prices, id)
	return nil
}

func (r *memPriceRepo) ListByProof(_ context.Context, proofID int64) ([]domain.Price, error) {
	var out []domain.Price
	for _, price := range r.s.prices {
		if price.ProofID != nil && *price.ProofID == proofID {
			out = append(out, *price)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func duplicateKeyMatches(a, b *domain.Price) bool {
	return sameStr(a.ProductCode, b.ProductCode) &&
		sameStr(a.CategoryTag, b.CategoryTag) &&
		strings.Join(a.LabelsTags, ",") == strings.Join(b.LabelsTags, ",") &&
		strings.Join(a.OriginsTags, ",") == strings.Join(b.OriginsTags, ",") &&
		(a.PricePer == nil) == (b.PricePer == nil) &&
		(a.PricePer == nil || *a.PricePer == *b.PricePer) &&
		a.Amount.Equal(b.Amount) &&
		a.IsDiscounted == b.IsDiscounted &&
		(a.AmountWithoutDiscount == nil) == (b.AmountWithoutDiscount == nil) &&
		(a.AmountWithoutDiscount == nil || a.AmountWithoutDiscount.Equal(*b.AmountWithoutDiscount)) &&
		(a.DiscountType == nil) == (b.DiscountType == nil) &&
		(a.DiscountType == nil || *a.DiscountType == *b.DiscountType) &&
		a.Currency == b.Currency &&
		sameDate(&a.Date, &b.Date) &&
		sameID(a.Location.LocationID, b.Location.LocationID)
}

func (r *memPriceRepo) FindCanonical(_ context.Context, candidate *domain.Price) (*domain.Price, error) {
	var canonical *domain.Price
	for _, price := range r.s.prices {
		if price.ID == candidate.ID || !duplicateKeyMatches(price, candidate) {
			continue
		}
		if canonical == nil || price.ID < canonical.ID {
			canonical = price
		}
	}
	if canonical == nil {
		return nil, nil
	}
	clone := *canonical
	return &clone, nil
}

func (r *memPriceRepo) SetDuplicateOf(_ context.Context, id int64, canonicalID *int64) error {
	price, ok := r.s.prices[id]
	if !ok {
		return domain.WrapError(domain.ErrPriceNotFound, "set duplicate_of", fmt.Errorf("id %d", id))
	}
	price.DuplicateOf = canonicalID
	return nil
}

func (r *memPriceRepo) ClearDuplicateOf(_ context.Context, canonicalID int64) (int64, error) {
	var cleared int64
	for _, price := range r.s.prices {
		if price.DuplicateOf != nil && *price.DuplicateOf == canonicalID {
			price.DuplicateOf = nil
			cleared++
		}
	}
	return cleared, nil
}

func (r *memPriceRepo) ListAfter(_ context.Context, afterID int64, limit int) ([]domain.Price, error) {
	var out []domain.Price
	for _, price := range r.s.prices {
		if price.ID > afterID {
			out = append(out, *price)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPriceRepo) MoveToProof(_ context.Context, fromProofID, toProofID int64) (int64, error) {
	var moved int64
	for _, price := range r.s.prices {
		if price.ProofID != nil && *price.ProofID == fromProofID {
			to := toProofID
			price.ProofID = &to
			moved++
		}
	}
	return moved, nil
}

func (r *memPriceRepo) FindProductCodeByName(_ context.Context, location domain.LocationRef, name string) (*string, error) {
	var latest *domain.Price
	for _, price := range r.s.prices {
		if price.ProductCode == nil || !sameID(price.Location.LocationID, location.LocationID) {
			continue
		}
		if r.s.productNames[*price.ProductCode] != name {
			continue
		}
		if latest == nil || price.ID > latest.ID {
			latest = price
		}
	}
	if latest == nil {
		return nil, nil
	}
	code := *latest.ProductCode
	return &code, nil
}

type memPriceTagRepo struct{ s *memStore }

func (r *memPriceTagRepo) Create(_ context.Context, tag *domain.PriceTag) error {
	tag.ID = r.s.id()
	clone := *tag
	r.s.tags[tag.ID] = &clone
	return nil
}

func (r *memPriceTagRepo) GetByID(_ context.Context, id int64) (*domain.PriceTag, error) {
	tag, ok := r.s.tags[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrPriceTagNotFound, "get price tag", fmt.Errorf("id %d", id))
	}
	clone := *tag
	return &clone, nil
}

func (r *memPriceTagRepo) Update(_ context.Context, tag *domain.PriceTag) error {
	stored, ok := r.s.tags[tag.ID]
	if !ok {
		return domain.WrapError(domain.ErrPriceTagNotFound, "update price tag", fmt.Errorf("id %d", tag.ID))
	}
	// Mirror the UPDATE column list: proof, creator, prediction counter
	// and creation time never change through Update.
	clone := *tag
	clone.ProofID = stored.ProofID
	clone.CreatedBy = stored.CreatedBy
	clone.PredictionCount = stored.PredictionCount
	clone.CreatedAt = stored.CreatedAt
	r.s.tags[tag.ID] = &clone
	return nil
}

func (r *memPriceTagRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.s.tags[id]; !ok {
		return domain.WrapError(domain.ErrPriceTagNotFound, "delete price tag", fmt.Errorf("id %d", id))
	}
	delete(r.s.tags, id)
	return nil
}

func (r *memPriceTagRepo) ListByProof(_ context.Context, proofID int64) ([]domain.PriceTag, error) {
	var out []domain.PriceTag
	for _, tag := range r.s.tags {
		if tag.ProofID == proofID {
			out = append(out, *tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPriceTagRepo) UnlinkByPrice(_ context.Context, priceID int64) (int64, error) {
	var unlinked int64
	for _, tag := range r.s.tags {
		if tag.PriceID != nil && *tag.PriceID == priceID {
			tag.Unlink()
			unlinked++
		}
	}
	return unlinked, nil
}

func (r *memPriceTagRepo) DeleteGeneratedUnlinked(_ context.Context, proofID int64) (int64, error) {
	var deleted int64
	for id, tag := range r.s.tags {
		if tag.ProofID == proofID && tag.SystemGenerated() && tag.PriceID == nil {
			delete(r.s.tags, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memPriceTagRepo) AdjustPredictionCount(_ context.Context, id int64, delta int) error {
	tag, ok := r.s.tags[id]
	if !ok {
		return domain.WrapError(domain.ErrPriceTagNotFound, "adjust tag prediction count", fmt.Errorf("id %d", id))
	}
	tag.PredictionCount = clamp(tag.PredictionCount + delta)
	return nil
}

func (r *memPriceTagRepo) RecountAll(_ context.Context) error {
	for _, tag := range r.s.tags {
		tag.PredictionCount = 0
	}
	for _, pred := range r.s.tagPred {
		if tag, ok := r.s.tags[pred.PriceTagID]; ok {
			tag.PredictionCount++
		}
	}
	return nil
}

type memReceiptItemRepo struct{ s *memStore }

func (r *memReceiptItemRepo) Create(_ context.Context, item *domain.ReceiptItem) error {
	item.ID = r.s.id()
	clone := *item
	r.s.items[item.ID] = &clone
	return nil
}

func (r *memReceiptItemRepo) GetByID(_ context.Context, id int64) (*domain.ReceiptItem, error) {
	item, ok := r.s.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrReceiptItemNotFound, "get receipt item", fmt.Errorf("id %d", id))
	}
	clone := *item
	return &clone, nil
}

func (r *memReceiptItemRepo) Update(_ context.Context, item *domain.ReceiptItem) error {
	if _, ok := r.s.items[item.ID]; !ok {
		return domain.WrapError(domain.ErrReceiptItemNotFound, "update receipt item", fmt.Errorf("id %d", item.ID))
	}
	clone := *item
	r.s.items[item.ID] = &clone
	return nil
}

func (r *memReceiptItemRepo) ListByProof(_ context.Context, proofID int64) ([]domain.ReceiptItem, error) {
	var out []domain.ReceiptItem
	for _, item := range r.s.items {
		if item.ProofID == proofID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memReceiptItemRepo) UnlinkByPrice(_ context.Context, priceID int64) (int64, error) {
	var unlinked int64
	for _, item := range r.s.items {
		if item.PriceID != nil && *item.PriceID == priceID {
			item.Unlink()
			unlinked++
		}
	}
	return unlinked, nil
}

func (r *memReceiptItemRepo) DeleteUnlinked(_ context.Context, proofID int64) (int64, error) {
	var deleted int64
	for id, item := range r.s.items {
		if item.ProofID == proofID && item.PriceID == nil {
			delete(r.s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

type memPredictionRepo struct{ s *memStore }

func (r *memPredictionRepo) CreateProofPrediction(_ context.Context, p *domain.ProofPrediction) error {
	p.ID = r.s.id()
	clone := *p
	r.s.proofPred[p.ID] = &clone
	return nil
}

func (r *memPredictionRepo) GetProofPrediction(_ context.Context, proofID int64, modelName string) (*domain.ProofPrediction, error) {
	for _, p := range r.s.proofPred {
		if p.ProofID == proofID && p.ModelName == modelName {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.WrapError(domain.ErrPredictionNotFound, "get proof prediction", fmt.Errorf("proof %d model %s", proofID, modelName))
}

func (r *memPredictionRepo) ListProofPredictions(_ context.Context, proofID int64) ([]domain.ProofPrediction, error) {
	var out []domain.ProofPrediction
	for _, p := range r.s.proofPred {
		if p.ProofID == proofID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPredictionRepo) DeleteProofPrediction(_ context.Context, id int64) error {
	if _, ok := r.s.proofPred[id]; !ok {
		return domain.WrapError(domain.ErrPredictionNotFound, "delete proof prediction", fmt.Errorf("id %d", id))
	}
	delete(r.s.proofPred, id)
	return nil
}

func (r *memPredictionRepo) UpdateProofPredictionData(_ context.Context, id int64, data []byte) error {
	p, ok := r.s.proofPred[id]
	if !ok {
		return domain.WrapError(domain.ErrPredictionNotFound, "update proof prediction data", fmt.Errorf("id %d", id))
	}
	p.Data = data
	return nil
}

func (r *memPredictionRepo) CreatePriceTagPrediction(_ context.Context, p *domain.PriceTagPrediction) error {
	p.ID = r.s.id()
	clone := *p
	r.s.tagPred[p.ID] = &clone
	return nil
}

func (r *memPredictionRepo) GetPriceTagPrediction(_ context.Context, priceTagID int64, modelName string) (*domain.PriceTagPrediction, error) {
	for _, p := range r.s.tagPred {
		if p.PriceTagID == priceTagID && p.ModelName == modelName {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.WrapError(domain.ErrPredictionNotFound, "get price tag prediction", fmt.Errorf("tag %d model %s", priceTagID, modelName))
}

func (r *memPredictionRepo) ListPriceTagPredictions(_ context.Context, priceTagID int64) ([]domain.PriceTagPrediction, error) {
	var out []domain.PriceTagPrediction
	for _, p := range r.s.tagPred {
		if p.PriceTagID == priceTagID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memPredictionRepo) UpdatePriceTagPredictionData(_ context.Context, id int64, data []byte) error {
	p, ok := r.s.tagPred[id]
	if !ok {
		return domain.WrapError(domain.ErrPredictionNotFound, "update price tag prediction data", fmt.Errorf("id %d", id))
	}
	p.Data = data
	return nil
}

type memLocationRepo struct{ s *memStore }

func (r *memLocationRepo) GetByID(_ context.Context, id int64) (*domain.Location, error) {
	loc, ok := r.s.locations[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrLocationNotFound, "get location", fmt.Errorf("id %d", id))
	}
	clone := *loc
	return &clone, nil
}

func (r *memLocationRepo) AdjustPriceCount(_ context.Context, id int64, delta int) error {
	loc, ok := r.s.locations[id]
	if !ok {
		return domain.WrapError(domain.ErrLocationNotFound, "adjust location price count", fmt.Errorf("id %d", id))
	}
	loc.PriceCount = clamp(loc.PriceCount + delta)
	return nil
}

func (r *memLocationRepo) RecountAll(_ context.Context) error {
	for _, loc := range r.s.locations {
		loc.PriceCount = 0
	}
	for _, price := range r.s.prices {
		if price.Location.LocationID != nil {
			if loc, ok := r.s.locations[*price.Location.LocationID]; ok {
				loc.PriceCount++
			}
		}
	}
	return nil
}

type memProductRepo struct{ s *memStore }

func (r *memProductRepo) Exists(_ context.Context, code string) (bool, error) {
	_, ok := r.s.productNames[code]
	return ok, nil
}

func (r *memProductRepo) ListCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(r.s.productNames))
	for code := range r.s.productNames {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *memProductRepo) AdjustPriceCount(_ context.Context, code string, delta int) error {
	r.s.productCounts[code] = clamp(r.s.productCounts[code] + delta)
	return nil
}

func (r *memProductRepo) RecountAll(_ context.Context) error {
	r.s.productCounts = map[string]int{}
	for _, price := range r.s.prices {
		if price.ProductCode != nil {
			r.s.productCounts[*price.ProductCode]++
		}
	}
	return nil
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) AdjustPriceCount(_ context.Context, userID string, delta int) error {
	r.s.userCounts[userID] = clamp(r.s.userCounts[userID] + delta)
	return nil
}

func (r *memUserRepo) RecountAll(_ context.Context) error {
	r.s.userCounts = map[string]int{}
	for _, price := range r.s.prices {
		if price.Owner != nil {
			r.s.userCounts[*price.Owner]++
		}
	}
	return nil
}

// fakeResolver canonicalizes by echoing language-prefixed values and
// rejecting everything else.
type fakeResolver struct {
	canonical map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, _ ports.TaxonomyDomain, value string) (string, error) {
	if !strings.Contains(value, ":") {
		return "", domain.WrapError(domain.ErrUnknownLanguagePrefix, "resolve", fmt.Errorf("value %q", value))
	}
	if f.canonical != nil {
		if mapped, ok := f.canonical[value]; ok {
			return mapped, nil
		}
	}
	return value, nil
}

type fakeContentStore struct {
	files map[string][]byte
	saves int
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{files: map[string][]byte{}}
}

func (f *fakeContentStore) Save(_ context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.files[key] = body
	f.saves++
	return nil
}

func (f *fakeContentStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no content for key %q", key)
	}
	return io.NopCloser(strings.NewReader(string(body))), nil
}

func (f *fakeContentStore) Remove(_ context.Context, key string) error {
	if _, ok := f.files[key]; !ok {
		return fmt.Errorf("no content for key %q", key)
	}
	delete(f.files, key)
	return nil
}

type fakeQueue struct {
	published []int64
	fail      bool
}

func (f *fakeQueue) PublishProofUploaded(_ context.Context, proofID int64) error {
	if f.fail {
		return fmt.Errorf("queue is down")
	}
	f.published = append(f.published, proofID)
	return nil
}

func (f *fakeQueue) SubscribeProofUploaded(context.Context, func(context.Context, int64) error) error {
	return nil
}

type fakeDetector struct {
	boxes []domain.DetectedBox
	err   error
	calls int
}

func (f *fakeDetector) Detect(context.Context, io.Reader) ([]domain.DetectedBox, string, error) {
	f.calls++
	return f.boxes, "v1.0", f.err
}

type fakeExtractor struct {
	priceTag *domain.ExtractedPriceTag
	receipt  []domain.ExtractedReceiptItem
	err      error
}

func (f *fakeExtractor) ExtractPriceTag(context.Context, io.Reader) (*domain.ExtractedPriceTag, string, error) {
	return f.priceTag, "v1.0", f.err
}

func (f *fakeExtractor) ExtractReceipt(context.Context, io.Reader) ([]domain.ExtractedReceiptItem, string, error) {
	return f.receipt, "v1.0", f.err
}

type fakeRepairer struct {
	repaired    string
	suggestions []domain.BarcodeSuggestion
}

func (f *fakeRepairer) Repair(_ context.Context, raw string) (string, []domain.BarcodeSuggestion, error) {
	if f.repaired != "" {
		return f.repaired, nil, nil
	}
	if f.suggestions != nil {
		return "", f.suggestions, nil
	}
	return raw, nil, nil
}

// fakeBarcodes mirrors the production normalizer and mod-10 validation for
// well-formed digit-only input.
type fakeBarcodes struct{}

func (fakeBarcodes) IsValidCheckDigit(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	sum := 0
	weight := 3
	for i := len(code) - 2; i >= 0; i-- {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
		sum += int(code[i]-'0') * weight
		weight = 4 - weight
	}
	return byte('0'+(10-sum%10)%10) == code[len(code)-1]
}

func (fakeBarcodes) Normalize(code string) string {
	if code == "" || len(code) == 8 || len(code) >= 13 {
		return code
	}
	return strings.Repeat("0", 13-len(code)) + code
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func int64Ptr(n int64) *int64 { return &n }

func timePtr(t time.Time) *time.Time { return &t }
