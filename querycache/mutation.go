package querycache

import (
	"context"

	"github.com/goliatone/go-blog-cache/cache"
)

// Mutation describes one write endpoint call. Mutation results are never
// cached; InvalidatesTags decides which cached queries the write affects. It
// is called with the error too, so a rule may invalidate on failure.
type Mutation[A, R any] struct {
	Endpoint        string
	Do              func(ctx context.Context, arg A) (R, error)
	InvalidatesTags func(result R, err error, arg A) []cache.Tag
}

// Mutate performs m and, before returning, reconciles the cache against the
// tags it invalidates: subscribed queries are refetched and awaited, the rest
// marked stale. Reconciliation is not bound to ctx, so a caller giving up
// cannot leave the cache half reconciled.
func Mutate[A, R any](ctx context.Context, c *Client, m Mutation[A, R], arg A) (R, error) {
	result, err := m.Do(ctx, arg)

	var tags []cache.Tag
	if m.InvalidatesTags != nil {
		tags = cache.DedupeTags(m.InvalidatesTags(result, err, arg))
	}

	if len(tags) > 0 {
		keys := c.reconciler.Invalidated(context.WithoutCancel(ctx), tags)
		c.logger.Debug("querycache: mutation reconciled",
			"endpoint", m.Endpoint, "tags", len(tags), "keys", len(keys), "failed", err != nil)
	}

	return result, err
}
