package blog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"

	"github.com/goliatone/go-blog-cache/cache"
	"github.com/goliatone/go-blog-cache/querycache"
	"github.com/goliatone/go-blog-cache/transport"
)

// TagType is the tag type of every post tag.
const TagType = "Posts"

// Endpoint names. They become the first segment of the cache keys.
const (
	EndpointList   = "getPosts"
	EndpointGet    = "getPost"
	EndpointCreate = "addPost"
	EndpointUpdate = "updatePost"
	EndpointDelete = "deletePost"
)

const postsPath = "/posts"

// ErrMissingID is returned by writes that address a post without an id.
var ErrMissingID = errors.New("blog: post id is required")

// ListTag is the tag of the post collection.
func ListTag() cache.Tag {
	return cache.ListTag(TagType)
}

// PostTag is the tag of one post.
func PostTag(id string) cache.Tag {
	return cache.EntityTag(TagType, id)
}

// Service exposes the posts backend through the query cache.
type Service struct {
	cache  *querycache.Client
	api    *transport.Client
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService builds a Service reading through qc and writing through api.
func NewService(qc *querycache.Client, api *transport.Client, opts ...ServiceOption) *Service {
	s := &Service{
		cache:  qc,
		api:    api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the query cache the service reads through.
func (s *Service) Cache() *querycache.Client {
	return s.cache
}

func postPath(id string) string {
	return postsPath + "/" + url.PathEscape(id)
}

// listTags tags the list result with every post it contains plus the list
// tag, which is present even for an empty list so creates still refresh it.
func listTags(posts []Post) []cache.Tag {
	tags := make([]cache.Tag, 0, len(posts)+1)
	for _, p := range posts {
		tags = append(tags, PostTag(p.ID))
	}
	return append(tags, ListTag())
}

func (s *Service) listQuery() querycache.Query[[]Post] {
	return querycache.Query[[]Post]{
		Endpoint: EndpointList,
		Fetch: func(ctx context.Context) ([]Post, error) {
			var posts []Post
			if err := s.api.Get(ctx, postsPath, &posts); err != nil {
				return nil, err
			}
			return posts, nil
		},
		ProvidesTags: listTags,
	}
}

func (s *Service) postQuery(id string) querycache.Query[Post] {
	return querycache.Query[Post]{
		Endpoint: EndpointGet,
		Arg:      id,
		Fetch: func(ctx context.Context) (Post, error) {
			var p Post
			err := s.api.Get(ctx, postPath(id), &p)
			return p, err
		},
		ProvidesTags: func(Post) []cache.Tag {
			return []cache.Tag{PostTag(id)}
		},
	}
}

// FetchList returns all posts.
func (s *Service) FetchList(ctx context.Context) ([]Post, error) {
	return querycache.Fetch(ctx, s.cache, s.listQuery())
}

// RefetchList reloads all posts from the backend regardless of freshness.
func (s *Service) RefetchList(ctx context.Context) ([]Post, error) {
	return querycache.Refetch(ctx, s.cache, s.listQuery())
}

// FetchOne returns the post with id.
func (s *Service) FetchOne(ctx context.Context, id string) (Post, error) {
	return querycache.Fetch(ctx, s.cache, s.postQuery(id))
}

// WatchList subscribes to the post list. Close the subscription when done.
func (s *Service) WatchList(ctx context.Context) *querycache.Subscription[[]Post] {
	return querycache.Subscribe(ctx, s.cache, s.listQuery())
}

// WatchPost subscribes to one post.
func (s *Service) WatchPost(ctx context.Context, id string) *querycache.Subscription[Post] {
	return querycache.Subscribe(ctx, s.cache, s.postQuery(id))
}

func createMutation(api *transport.Client) querycache.Mutation[PostInput, Post] {
	return querycache.Mutation[PostInput, Post]{
		Endpoint: EndpointCreate,
		Do: func(ctx context.Context, in PostInput) (Post, error) {
			var created Post
			err := api.Post(ctx, postsPath, in, &created)
			return created, err
		},
		InvalidatesTags: func(_ Post, err error, _ PostInput) []cache.Tag {
			if err != nil {
				return nil
			}
			return []cache.Tag{ListTag()}
		},
	}
}

func updateMutation(api *transport.Client) querycache.Mutation[Post, Post] {
	return querycache.Mutation[Post, Post]{
		Endpoint: EndpointUpdate,
		Do: func(ctx context.Context, p Post) (Post, error) {
			var updated Post
			err := api.Put(ctx, postPath(p.ID), p, &updated)
			return updated, err
		},
		InvalidatesTags: func(_ Post, err error, p Post) []cache.Tag {
			if err != nil {
				return nil
			}
			return []cache.Tag{PostTag(p.ID)}
		},
	}
}

// deleteMutation invalidates the post whether or not the request succeeded.
func deleteMutation(api *transport.Client) querycache.Mutation[string, struct{}] {
	return querycache.Mutation[string, struct{}]{
		Endpoint: EndpointDelete,
		Do: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, api.Delete(ctx, postPath(id), nil)
		},
		InvalidatesTags: func(_ struct{}, _ error, id string) []cache.Tag {
			return []cache.Tag{PostTag(id)}
		},
	}
}

// Create adds a post. On success the list is refetched or marked stale before
// Create returns.
func (s *Service) Create(ctx context.Context, in PostInput) (Post, error) {
	p, err := querycache.Mutate(ctx, s.cache, createMutation(s.api), in)
	if err != nil {
		s.logFailure(ctx, "create post failed", err)
		return Post{}, err
	}
	s.logger.InfoContext(ctx, "post created", "id", p.ID)
	return p, nil
}

// Update replaces the post with p.ID. On success every cached query that
// includes the post is refreshed.
func (s *Service) Update(ctx context.Context, p Post) (Post, error) {
	if p.ID == "" {
		return Post{}, ErrMissingID
	}
	updated, err := querycache.Mutate(ctx, s.cache, updateMutation(s.api), p)
	if err != nil {
		s.logFailure(ctx, "update post failed", err, "id", p.ID)
		return Post{}, err
	}
	s.logger.InfoContext(ctx, "post updated", "id", p.ID)
	return updated, nil
}

// Delete removes the post. Queries including it are invalidated even when the
// request fails.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	if _, err := querycache.Mutate(ctx, s.cache, deleteMutation(s.api), id); err != nil {
		s.logFailure(ctx, "delete post failed", err, "id", id)
		return err
	}
	s.logger.InfoContext(ctx, "post deleted", "id", id)
	return nil
}

// logFailure logs rejected input at info and every other failure at warn.
func (s *Service) logFailure(ctx context.Context, msg string, err error, args ...any) {
	level := slog.LevelWarn
	if transport.IsValidation(err) {
		level = slog.LevelInfo
	}
	args = append(args, "kind", transport.KindOf(err), "error", err)
	s.logger.Log(ctx, level, msg, args...)
}
