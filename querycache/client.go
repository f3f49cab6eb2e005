package querycache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/goliatone/go-blog-cache/cache"
)

// Client owns the entity store, the tag index and the reconciler that keeps
// them consistent. Build one per backend and pass it to the query and
// mutation functions; there is no package level instance.
type Client struct {
	store      *Store
	index      *TagIndex
	reconciler *Reconciler

	codec         cache.Codec
	keys          cache.KeySerializer
	maxAge        time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithKeySerializer replaces the default key serializer.
func WithKeySerializer(keys cache.KeySerializer) Option {
	return func(c *Client) {
		if keys != nil {
			c.keys = keys
		}
	}
}

// WithCodec replaces the default msgpack codec.
func WithCodec(codec cache.Codec) Option {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// New builds a Client on top of payloads.
func New(payloads cache.PayloadStore, cfg cache.Config, opts ...Option) (*Client, error) {
	if payloads == nil {
		return nil, errors.New("querycache: payload store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		codec:         cache.NewCodec(),
		keys:          cache.NewDefaultKeySerializer(),
		maxAge:        cfg.MaxAge,
		sweepInterval: cfg.SweepInterval,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.index = NewTagIndex()
	c.store = newStore(payloads, cfg.KeepUnusedFor, c.now, c.logger)
	c.store.onPut = func(key string, tags []cache.Tag) { c.index.Index(tags, key) }
	c.store.onEvict = c.index.Remove
	c.reconciler = &Reconciler{client: c}

	return c, nil
}

// Store returns the entity store.
func (c *Client) Store() *Store {
	return c.store
}

// Index returns the tag index.
func (c *Client) Index() *TagIndex {
	return c.index
}

// Reconciler returns the reconciler mutations report to.
func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

// Key returns the cache key of the query descriptor (endpoint, arg).
func (c *Client) Key(endpoint string, arg any) string {
	return c.keys.SerializeKey(snakeEndpoint(endpoint), arg)
}

// Invalidate runs the reconciler for tags, as a mutation would.
func (c *Client) Invalidate(ctx context.Context, tags ...cache.Tag) []string {
	return c.reconciler.Invalidated(ctx, tags)
}

// Run sweeps unused entries until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.store.Run(ctx, c.sweepInterval)
}

// fetcher performs a read and returns the encoded result with its tags.
type fetcher func(ctx context.Context) ([]byte, []cache.Tag, error)

// flight is one fetch for one entry. Fields other than done are guarded by
// the owning entry's mutex; data and err are final once done is closed.
type flight struct {
	seq    uint64
	done   chan struct{}
	cancel context.CancelFunc
	// next is the flight that superseded this one before it finished.
	next *flight

	data      []byte
	err       error
	waiters   int
	cancelled bool
	finished  bool
}

// freshDataLocked returns the cached payload if it may be served without
// going to the network.
func (c *Client) freshDataLocked(e *entry) ([]byte, bool) {
	if e.stale || c.maxAge <= 0 || c.now().Sub(e.fetchedAt) >= c.maxAge {
		return nil, false
	}
	return c.store.dataLocked(e)
}

// launchLocked starts a fetch for e and makes it the entry's current flight.
// The new sequence number supersedes any older flight, whose result will not
// be written.
func (c *Client) launchLocked(e *entry, fetch fetcher) *flight {
	e.seq++
	ctx, cancel := context.WithCancel(context.Background())
	fl := &flight{
		seq:    e.seq,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	if prev := e.inflight; prev != nil {
		prev.next = fl
		if prev.waiters == 0 {
			c.cancelLocked(e, prev)
		}
	}
	e.inflight = fl

	c.logger.Debug("querycache: fetch started", "key", e.key, "seq", fl.seq)
	go c.run(ctx, e, fl, fetch)
	return fl
}

func (c *Client) run(ctx context.Context, e *entry, fl *flight, fetch fetcher) {
	data, tags, err := fetch(ctx)
	fl.cancel()

	e.mu.Lock()
	fl.finished = true
	if e.inflight == fl {
		e.inflight = nil
	}
	current := !e.removed && fl.seq == e.seq

	switch {
	case fl.cancelled:
		fl.err = context.Canceled
		c.logger.Debug("querycache: fetch cancelled", "key", e.key, "seq", fl.seq)
	case err != nil:
		fl.err = err
		if current {
			e.err = err
			e.notify(Event{Key: e.key, Err: err})
		}
		c.logger.Warn("querycache: fetch failed", "key", e.key, "seq", fl.seq, "error", err)
	case !current:
		fl.data = data
		c.logger.Debug("querycache: discarding superseded result", "key", e.key, "seq", fl.seq, "current", e.seq)
	default:
		fl.data = data
		c.store.putLocked(e, data, tags)
		c.logger.Debug("querycache: fetch stored", "key", e.key, "seq", fl.seq, "tags", len(tags))
	}
	e.mu.Unlock()

	close(fl.done)
}

// cancelLocked abandons fl. Its result, whenever it arrives, is dropped.
func (c *Client) cancelLocked(e *entry, fl *flight) {
	if fl.finished || fl.cancelled {
		return
	}
	fl.cancelled = true
	fl.cancel()
	if e.inflight == fl {
		e.inflight = nil
	}
}

// begin serves a fresh hit or returns the flight the caller has to wait on,
// joining one already in flight when there is one.
func (c *Client) begin(key string, fetch fetcher, force bool) (*entry, []byte, *flight) {
	e := c.store.acquire(key)
	defer e.mu.Unlock()

	e.refetch = fetch
	e.lastUsed = c.now()

	if !force {
		if data, ok := c.freshDataLocked(e); ok {
			c.logger.Debug("querycache: hit", "key", key)
			return e, data, nil
		}
	}

	fl := e.inflight
	if fl == nil {
		fl = c.launchLocked(e, fetch)
	} else {
		c.logger.Debug("querycache: joined in-flight fetch", "key", key, "seq", fl.seq)
	}
	fl.waiters++
	e.refs++
	return e, nil, fl
}

// wait blocks until fl completes or ctx is done. The last waiter to give up on
// a flight nobody subscribes to cancels it.
func (c *Client) wait(ctx context.Context, e *entry, fl *flight) ([]byte, error) {
	select {
	case <-fl.done:
		c.release(e, fl, false)
		return fl.data, fl.err
	case <-ctx.Done():
		c.release(e, fl, true)
		return nil, ctx.Err()
	}
}

func (c *Client) release(e *entry, fl *flight, abandoned bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fl.waiters--
	e.refs--
	e.lastUsed = c.now()

	if abandoned && fl.waiters == 0 && len(e.subs) == 0 {
		c.cancelLocked(e, fl)
	}
}

// settle waits for fl and for every flight that superseded it before it
// finished. It reports false if ctx ended first.
func (c *Client) settle(ctx context.Context, e *entry, fl *flight) bool {
	for fl != nil {
		select {
		case <-fl.done:
		case <-ctx.Done():
			return false
		}
		e.mu.Lock()
		fl = fl.next
		e.mu.Unlock()
	}
	return true
}

// invalidateKey marks key stale. A subscribed key gets a refetch, which is
// returned; any fetch already in flight may have read the backend before the
// change and is superseded. For an unsubscribed key the in-flight fetch is
// detached so its pre-invalidation result never lands in the store.
func (c *Client) invalidateKey(key string) (*entry, *flight) {
	e := c.store.lookup(key)
	if e == nil {
		return nil, nil
	}
	defer e.mu.Unlock()

	e.stale = true

	if len(e.subs) > 0 && e.refetch != nil {
		return e, c.launchLocked(e, e.refetch)
	}

	if fl := e.inflight; fl != nil {
		if fl.waiters == 0 {
			c.cancelLocked(e, fl)
		}
		e.seq++
		e.inflight = nil
	}
	return e, nil
}
