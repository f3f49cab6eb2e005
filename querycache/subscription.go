package querycache

import (
	"context"
	"sync"
)

// Subscription keeps a query's entry alive and refreshed. While it is open the
// entry is never swept, and invalidating one of its tags triggers a refetch
// instead of just marking it stale.
type Subscription[T any] struct {
	client *Client
	entry  *entry
	sub    *subscriber
	query  Query[T]

	closeOnce sync.Once
}

// Subscribe opens a subscription for q and starts a fetch unless a fresh
// result is already cached. Updates are delivered on Updates until Close.
func Subscribe[T any](ctx context.Context, c *Client, q Query[T]) *Subscription[T] {
	key := c.Key(q.Endpoint, q.Arg)
	fetch := bind(c, q, TagsFromContext(ctx))

	e := c.store.acquire(key)
	defer e.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, 1)}
	e.subs[sub] = struct{}{}
	e.refetch = fetch
	e.lastUsed = c.now()

	if _, fresh := c.freshDataLocked(e); !fresh && e.inflight == nil && q.Fetch != nil {
		c.launchLocked(e, fetch)
	}

	c.logger.Debug("querycache: subscribed", "key", key, "subscribers", len(e.subs))
	return &Subscription[T]{client: c, entry: e, sub: sub, query: q}
}

// Key returns the cache key the subscription watches.
func (s *Subscription[T]) Key() string {
	return s.entry.key
}

// Updates delivers an Event whenever the entry is rewritten or a fetch for it
// fails. Events coalesce; read Current for the state. The channel is closed
// by Close.
func (s *Subscription[T]) Updates() <-chan Event {
	return s.sub.ch
}

// Current returns the cached result, if any, and the error of the latest
// failed fetch since it was written.
func (s *Subscription[T]) Current() (T, bool, error) {
	var zero T

	e := s.entry
	e.mu.Lock()
	data, ok := s.client.store.dataLocked(e)
	fetchErr := e.err
	e.mu.Unlock()

	if !ok {
		return zero, false, fetchErr
	}
	out, err := decode[T](s.client, e.key, data)
	if err != nil {
		return zero, false, err
	}
	return out, true, fetchErr
}

// Fetching reports whether a fetch for the entry is in flight.
func (s *Subscription[T]) Fetching() bool {
	s.entry.mu.Lock()
	defer s.entry.mu.Unlock()
	return s.entry.inflight != nil
}

// Refetch forces a network read for the subscribed query.
func (s *Subscription[T]) Refetch(ctx context.Context) (T, error) {
	return Refetch(ctx, s.client, s.query)
}

// Close removes the subscription. An in-flight fetch nobody else waits on is
// cancelled, and the entry becomes eligible for eviction after the retention
// window. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		e := s.entry
		e.mu.Lock()
		defer e.mu.Unlock()

		delete(e.subs, s.sub)
		close(s.sub.ch)
		e.lastUsed = s.client.now()

		if len(e.subs) == 0 {
			if fl := e.inflight; fl != nil && fl.waiters == 0 {
				s.client.cancelLocked(e, fl)
			}
		}
		s.client.logger.Debug("querycache: unsubscribed", "key", e.key, "subscribers", len(e.subs))
	})
}
