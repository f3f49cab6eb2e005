// Package querycache is a client side cache for the results of read endpoints
// that keeps itself consistent with writes through tags.
//
// Every query result is stored under a key derived from the endpoint name and
// argument, together with the tags it provides:
//
//	list, err := querycache.Fetch(ctx, client, querycache.Query[[]Post]{
//		Endpoint: "getPosts",
//		Fetch:    api.ListPosts,
//		ProvidesTags: func(posts []Post) []cache.Tag {
//			tags := []cache.Tag{cache.ListTag("Posts")}
//			for _, p := range posts {
//				tags = append(tags, cache.EntityTag("Posts", p.ID))
//			}
//			return tags
//		},
//	})
//
// Mutations declare the tags they invalidate. Before Mutate returns, every
// cached query registered under one of those tags has either been refetched
// (when something subscribes to it) or marked stale (so the next read goes to
// the network):
//
//	_, err := querycache.Mutate(ctx, client, querycache.Mutation[string, struct{}]{
//		Endpoint: "deletePost",
//		Do:       api.DeletePost,
//		InvalidatesTags: func(_ struct{}, _ error, id string) []cache.Tag {
//			return []cache.Tag{cache.EntityTag("Posts", id)}
//		},
//	}, id)
//
// Concurrent reads of the same key share one request. A fetch started before
// an invalidation never overwrites the entry once the invalidation happened.
// Entries without subscribers are swept after Config.KeepUnusedFor; run
// Client.Run in a goroutine to enable the sweeper.
package querycache
