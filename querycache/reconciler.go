package querycache

import (
	"context"

	"github.com/goliatone/go-blog-cache/cache"
)

// Reconciler applies invalidations reported by mutations.
type Reconciler struct {
	client *Client
}

// Invalidated resolves tags to cache keys and invalidates each of them. It
// returns once every triggered refetch has settled or ctx is done, and
// reports the affected keys in sorted order. A refetch superseded by a later
// invalidation is followed to its replacement.
func (r *Reconciler) Invalidated(ctx context.Context, tags []cache.Tag) []string {
	c := r.client
	keys := c.index.Invalidate(tags)
	if len(keys) == 0 {
		return nil
	}

	type refetch struct {
		e  *entry
		fl *flight
	}
	var pending []refetch
	for _, key := range keys {
		if e, fl := c.invalidateKey(key); fl != nil {
			pending = append(pending, refetch{e, fl})
		}
	}

	c.logger.Debug("querycache: invalidated",
		"tags", len(tags), "keys", len(keys), "refetching", len(pending))

	for _, p := range pending {
		if !c.settle(ctx, p.e, p.fl) {
			return keys
		}
	}
	return keys
}
