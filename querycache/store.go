package querycache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-blog-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrEntryInUse is returned by Store.Evict for an entry that still has
// subscribers, waiting callers, or a fetch in flight.
var ErrEntryInUse = errors.New("querycache: entry in use")

// Event tells a subscriber that the entry behind its query changed. Err is set
// when a fetch failed; the previously cached result is still served.
type Event struct {
	Key string
	Err error
}

// Entry is a point-in-time copy of a cache entry. Data is the caller's own
// copy of the payload.
type Entry struct {
	Key         string
	Data        []byte
	Tags        []cache.Tag
	FetchedAt   time.Time
	LastUsed    time.Time
	Stale       bool
	Fetching    bool
	Subscribers int
	Refs        int
	Err         error
}

type subscriber struct {
	ch chan Event
}

// entry is guarded by mu. Payload bytes live in the PayloadStore, hasData only
// says a payload was written; the backend may have dropped it since.
type entry struct {
	mu sync.Mutex

	key       string
	hasData   bool
	tags      []cache.Tag
	fetchedAt time.Time
	lastUsed  time.Time
	stale     bool
	err       error

	subs     map[*subscriber]struct{}
	refs     int
	seq      uint64
	inflight *flight
	refetch  fetcher
	removed  bool
}

func (e *entry) busy() bool {
	return len(e.subs) > 0 || e.refs > 0 || e.inflight != nil
}

func (e *entry) notify(ev Event) {
	for sub := range e.subs {
		select {
		case sub.ch <- ev:
		default:
			// an undelivered event is already pending; the subscriber reads
			// the current state when it drains it.
		}
	}
}

func (e *entry) snapshot(data []byte) Entry {
	return Entry{
		Key:         e.key,
		Data:        bytes.Clone(data),
		Tags:        append([]cache.Tag(nil), e.tags...),
		FetchedAt:   e.fetchedAt,
		LastUsed:    e.lastUsed,
		Stale:       e.stale,
		Fetching:    e.inflight != nil,
		Subscribers: len(e.subs),
		Refs:        e.refs,
		Err:         e.err,
	}
}

// Store is the in-memory entity store: entry metadata keyed by cache key,
// payloads in a cache.PayloadStore. Writes to the same key are last write
// wins; ordering between concurrent fetches is enforced by the Client.
type Store struct {
	entries       *xsync.MapOf[string, *entry]
	payloads      cache.PayloadStore
	keepUnusedFor time.Duration
	now           func() time.Time
	logger        *slog.Logger

	onPut   func(key string, tags []cache.Tag)
	onEvict func(key string)
}

func newStore(payloads cache.PayloadStore, keepUnusedFor time.Duration, now func() time.Time, logger *slog.Logger) *Store {
	return &Store{
		entries:       xsync.NewMapOf[string, *entry](),
		payloads:      payloads,
		keepUnusedFor: keepUnusedFor,
		now:           now,
		logger:        logger,
	}
}

// Get returns the entry for key when it holds a result. The result may be
// stale.
func (s *Store) Get(key string) (Entry, bool) {
	e := s.lookup(key)
	if e == nil {
		return Entry{}, false
	}
	defer e.mu.Unlock()

	data, ok := s.dataLocked(e)
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(data), true
}

// Stat returns the entry for key whether or not it holds a result yet. Data
// is nil when it does not.
func (s *Store) Stat(key string) (Entry, bool) {
	e := s.lookup(key)
	if e == nil {
		return Entry{}, false
	}
	defer e.mu.Unlock()

	data, _ := s.dataLocked(e)
	return e.snapshot(data), true
}

// Put stores a copy of data and tags under key and notifies the key's
// subscribers.
func (s *Store) Put(key string, data []byte, tags []cache.Tag) {
	e := s.acquire(key)
	defer e.mu.Unlock()
	s.putLocked(e, bytes.Clone(data), tags)
}

// MarkStale flags key so the next read refetches instead of serving the
// cached result. It reports whether the key exists.
func (s *Store) MarkStale(key string) bool {
	e := s.lookup(key)
	if e == nil {
		return false
	}
	defer e.mu.Unlock()
	e.stale = true
	return true
}

// Evict removes key. It fails with ErrEntryInUse while the entry has
// subscribers, waiting callers, or a fetch in flight. Evicting an absent key
// is a no-op.
func (s *Store) Evict(key string) error {
	e := s.lookup(key)
	if e == nil {
		return nil
	}
	defer e.mu.Unlock()

	if e.busy() {
		return ErrEntryInUse
	}
	s.removeLocked(e)
	return nil
}

// Sweep evicts every idle entry unused for longer than the retention window
// and returns the evicted keys. Payloads with no entry behind them are
// deleted as well.
func (s *Store) Sweep(now time.Time) []string {
	var evicted []string
	s.entries.Range(func(key string, e *entry) bool {
		e.mu.Lock()
		if !e.removed && !e.busy() && now.Sub(e.lastUsed) >= s.keepUnusedFor {
			s.removeLocked(e)
			evicted = append(evicted, key)
		}
		e.mu.Unlock()
		return true
	})

	orphans := 0
	for _, key := range s.payloads.Keys() {
		if _, ok := s.entries.Load(key); !ok {
			s.payloads.Delete(key)
			orphans++
		}
	}
	if orphans > 0 {
		s.logger.Debug("querycache: dropped orphaned payloads", "count", orphans)
	}
	return evicted
}

// Len returns the number of entries, with or without a result.
func (s *Store) Len() int {
	return s.entries.Size()
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if evicted := s.Sweep(s.now()); len(evicted) > 0 {
				s.logger.Debug("querycache: evicted unused entries", "count", len(evicted))
			}
		}
	}
}

// acquire returns the locked entry for key, creating it if needed.
func (s *Store) acquire(key string) *entry {
	for {
		e, _ := s.entries.LoadOrCompute(key, func() *entry {
			return &entry{
				key:      key,
				subs:     make(map[*subscriber]struct{}),
				lastUsed: s.now(),
			}
		})
		e.mu.Lock()
		if !e.removed {
			return e
		}
		// lost a race with eviction, the map now holds a replacement
		e.mu.Unlock()
	}
}

// lookup returns the locked entry for key, or nil.
func (s *Store) lookup(key string) *entry {
	e, ok := s.entries.Load(key)
	if !ok {
		return nil
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil
	}
	return e
}

func (s *Store) dataLocked(e *entry) ([]byte, bool) {
	if !e.hasData {
		return nil, false
	}
	data, ok := s.payloads.Get(e.key)
	if !ok {
		s.logger.Debug("querycache: payload dropped by backend", "key", e.key)
		e.hasData = false
		return nil, false
	}
	return data, true
}

func (s *Store) putLocked(e *entry, data []byte, tags []cache.Tag) {
	s.payloads.Set(e.key, data)

	now := s.now()
	e.hasData = true
	e.tags = tags
	e.fetchedAt = now
	e.lastUsed = now
	e.stale = false
	e.err = nil

	if s.onPut != nil {
		s.onPut(e.key, tags)
	}
	e.notify(Event{Key: e.key})
}

func (s *Store) removeLocked(e *entry) {
	e.removed = true
	s.payloads.Delete(e.key)
	s.entries.Compute(e.key, func(current *entry, loaded bool) (*entry, bool) {
		// only drop the map slot if it still points at e
		if !loaded || current == e {
			return current, true
		}
		return current, false
	})
	if s.onEvict != nil {
		s.onEvict(e.key)
	}
}
