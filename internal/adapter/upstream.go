package adapter

import (
	"context"

	"pkghub/internal/cache"
	"pkghub/internal/fetch"
	"pkghub/pkg/problems"
)

// Upstream bundles the fetcher and metadata cache every backend works
// through.
type Upstream struct {
	Fetcher *fetch.Fetcher
	Cache   *cache.Cache
}

// CachedPackage resolves one package through the metadata cache, running
// load on a miss. Fetch errors are translated into the problem taxonomy so
// upstream 404s populate the negative cache.
func (u Upstream) CachedPackage(ctx context.Context, eco, id string, load func(ctx context.Context) (*Package, error)) (*Package, error) {
	key := cache.Key{Adapter: eco, Kind: "package", ID: id}
	v, err := u.Cache.GetOrFetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		pkg, err := load(ctx)
		if err != nil {
			return nil, fetch.Problem(err)
		}
		return pkg, nil
	})
	if err != nil {
		return nil, fetch.Problem(err)
	}
	pkg, ok := v.(*Package)
	if !ok {
		return nil, problems.Internal("cache holds unexpected payload for %s %q", eco, id)
	}
	return pkg, nil
}
