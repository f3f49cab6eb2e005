package querycache

import (
	"context"

	"github.com/goliatone/go-blog-cache/cache"
)

type cacheTagsContextKey struct{}

// WithCacheTags attaches additional tags to the context. Queries executed with
// the returned context register these tags next to the ones they provide.
func WithCacheTags(ctx context.Context, tags ...cache.Tag) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(tags) == 0 {
		return ctx
	}

	combined := cache.DedupeTags(append(TagsFromContext(ctx), tags...))
	if len(combined) == 0 {
		return ctx
	}

	return context.WithValue(ctx, cacheTagsContextKey{}, combined)
}

// TagsFromContext returns a copy of the tags attached with WithCacheTags.
func TagsFromContext(ctx context.Context) []cache.Tag {
	if ctx == nil {
		return nil
	}
	if tags, ok := ctx.Value(cacheTagsContextKey{}).([]cache.Tag); ok {
		return append([]cache.Tag(nil), tags...)
	}
	return nil
}
