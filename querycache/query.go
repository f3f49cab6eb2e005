package querycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-blog-cache/cache"
)

var (
	// ErrInvalidResultType is returned when a cached payload cannot be decoded
	// into the result type of the query reading it.
	ErrInvalidResultType = errors.New("querycache: cached result has unexpected type")

	// ErrNoFetch is returned for a query without a Fetch function.
	ErrNoFetch = errors.New("querycache: query has no fetch function")
)

// Query describes one read endpoint call. Endpoint and Arg form the cache key;
// ProvidesTags computes the tags the result is indexed under.
type Query[T any] struct {
	Endpoint     string
	Arg          any
	Fetch        func(ctx context.Context) (T, error)
	ProvidesTags func(result T) []cache.Tag
}

// Fetch returns the result of q, served from the cache while it is fresh.
// Concurrent calls for the same key share a single network request.
func Fetch[T any](ctx context.Context, c *Client, q Query[T]) (T, error) {
	return execute(ctx, c, q, false)
}

// Refetch performs q over the network even when a fresh result is cached, and
// stores the new result.
func Refetch[T any](ctx context.Context, c *Client, q Query[T]) (T, error) {
	return execute(ctx, c, q, true)
}

func execute[T any](ctx context.Context, c *Client, q Query[T], force bool) (T, error) {
	var zero T
	if q.Fetch == nil {
		return zero, ErrNoFetch
	}

	key := c.Key(q.Endpoint, q.Arg)
	e, data, fl := c.begin(key, bind(c, q, TagsFromContext(ctx)), force)
	if fl != nil {
		var err error
		if data, err = c.wait(ctx, e, fl); err != nil {
			return zero, err
		}
	}
	return decode[T](c, key, data)
}

// bind turns a typed query into a fetcher producing encoded results.
func bind[T any](c *Client, q Query[T], extra []cache.Tag) fetcher {
	return func(ctx context.Context) ([]byte, []cache.Tag, error) {
		if q.Fetch == nil {
			return nil, nil, ErrNoFetch
		}
		result, err := q.Fetch(ctx)
		if err != nil {
			return nil, nil, err
		}

		var tags []cache.Tag
		if q.ProvidesTags != nil {
			tags = q.ProvidesTags(result)
		}
		tags = cache.DedupeTags(append(tags, extra...))

		data, err := c.codec.Marshal(result)
		if err != nil {
			return nil, nil, err
		}
		return data, tags, nil
	}
}

func decode[T any](c *Client, key string, data []byte) (T, error) {
	var out T
	if err := c.codec.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: key %s: %v", ErrInvalidResultType, key, err)
	}
	return out, nil
}
