package querycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-blog-cache/cache"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memPayloads is a map backed PayloadStore that can drop payloads on demand.
type memPayloads struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemPayloads() *memPayloads {
	return &memPayloads{data: make(map[string][]byte)}
}

func (m *memPayloads) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	return d, ok
}

func (m *memPayloads) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

func (m *memPayloads) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *memPayloads) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// source is a fake read endpoint. Each call returns "<value>-<n>" where n is
// the call number. While gate is set, calls block until it is closed or their
// context ends.
type source struct {
	calls     atomic.Int32
	cancelled atomic.Int32

	mu    sync.Mutex
	value string
	err   error
	gate  chan struct{}
}

func newSource(value string) *source {
	return &source{value: value}
}

func (s *source) hold() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *source) set(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
}

func (s *source) open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = nil
}

func (s *source) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *source) fetch(ctx context.Context) (string, error) {
	n := s.calls.Add(1)

	s.mu.Lock()
	gate, value, err := s.gate, s.value, s.err
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			s.cancelled.Add(1)
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", value, n), nil
}

func (s *source) query(endpoint string, arg any, tags ...cache.Tag) Query[string] {
	return Query[string]{
		Endpoint: endpoint,
		Arg:      arg,
		Fetch:    s.fetch,
		ProvidesTags: func(string) []cache.Tag {
			return tags
		},
	}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	cfg := cache.DefaultConfig()
	opts = append([]Option{WithClock(clock.Now)}, opts...)

	c, err := New(newMemPayloads(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, clock
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("updates channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Event{}
}

// entryState reads internal counters of key.
func entryState(c *Client, key string) (refs int, inflight bool, ok bool) {
	e := c.store.lookup(key)
	if e == nil {
		return 0, false, false
	}
	defer e.mu.Unlock()
	return e.refs, e.inflight != nil, true
}

var postsList = cache.ListTag("Posts")

func postTag(id string) cache.Tag {
	return cache.EntityTag("Posts", id)
}
