package taxonomy

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

// CachedResolver memoizes resolutions in front of the taxonomy service.
// Taxonomies change on the order of weeks, so a long TTL is safe. Both hits
// and definitive misses are cached; transport failures are not, so an outage
// never poisons the cache.
type CachedResolver struct {
	inner ports.TaxonomyResolver
	cache *cache.Cache
}

type cachedMiss struct{ err error }

func NewCachedResolver(inner ports.TaxonomyResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: cache.New(ttl, ttl/2),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, taxonomy ports.TaxonomyDomain, value string) (string, error) {
	key := string(taxonomy) + "\x00" + value
	if entry, ok := r.cache.Get(key); ok {
		switch v := entry.(type) {
		case string:
			return v, nil
		case cachedMiss:
			return "", v.err
		}
	}

	canonical, err := r.inner.Resolve(ctx, taxonomy, value)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrUnknownLanguagePrefix) {
			r.cache.SetDefault(key, cachedMiss{err: err})
		}
		return "", err
	}
	r.cache.SetDefault(key, canonical)
	return canonical, nil
}
