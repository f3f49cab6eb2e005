package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/goliatone/go-blog-cache/blog"
	"github.com/google/uuid"
)

// Routes served by Backend, in net/http pattern syntax.
const (
	RouteList   = "GET /posts"
	RouteGet    = "GET /posts/{id}"
	RouteCreate = "POST /posts"
	RouteUpdate = "PUT /posts/{id}"
	RouteDelete = "DELETE /posts/{id}"
)

type failure struct {
	status int
	body   string
}

// Backend is an in-memory posts server. It validates writes the way the
// real backend does and answers 422 with {"error": {field: message}}.
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	posts    map[string]blog.Post
	order    []string
	calls    map[string]int
	failures map[string][]failure
	holds    map[string]chan struct{}
	auth     []string
}

// NewBackend starts a Backend holding seed.
func NewBackend(seed ...blog.Post) *Backend {
	b := &Backend{
		posts:    make(map[string]blog.Post),
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
		holds:    make(map[string]chan struct{}),
	}
	for _, p := range seed {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		b.posts[p.ID] = p
		b.order = append(b.order, p.ID)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteList, b.route(RouteList, b.list))
	mux.HandleFunc(RouteGet, b.route(RouteGet, b.get))
	mux.HandleFunc(RouteCreate, b.route(RouteCreate, b.create))
	mux.HandleFunc(RouteUpdate, b.route(RouteUpdate, b.update))
	mux.HandleFunc(RouteDelete, b.route(RouteDelete, b.delete))
	b.srv = httptest.NewServer(mux)

	return b
}

// URL returns the base URL of the server.
func (b *Backend) URL() string {
	return b.srv.URL
}

// Close shuts the server down, releasing held requests first.
func (b *Backend) Close() {
	b.mu.Lock()
	for route, ch := range b.holds {
		close(ch)
		delete(b.holds, route)
	}
	b.mu.Unlock()
	b.srv.Close()
}

// Calls returns how many requests route received.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// WriteCalls returns the number of create, update and delete requests.
func (b *Backend) WriteCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[RouteCreate] + b.calls[RouteUpdate] + b.calls[RouteDelete]
}

// FailNext makes the next request to route answer status with body instead
// of being handled.
func (b *Backend) FailNext(route string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], failure{status: status, body: body})
}

// Hold blocks requests to route until the returned func is called. Requests
// are counted before they block.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[route] == ch {
				delete(b.holds, route)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Posts returns the stored posts in insertion order.
func (b *Backend) Posts() []blog.Post {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]blog.Post, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.posts[id])
	}
	return out
}

// AuthHeaders returns the Authorization header of every request received.
func (b *Backend) AuthHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...)
}

func (b *Backend) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[name]++
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		hold := b.holds[name]
		var fail *failure
		if queued := b.failures[name]; len(queued) > 0 {
			fail = &queued[0]
			b.failures[name] = queued[1:]
		}
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if fail != nil {
			w.WriteHeader(fail.status)
			_, _ = w.Write([]byte(fail.body))
			return
		}
		h(w, r)
	}
}

func (b *Backend) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.Posts())
}

func (b *Backend) get(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	p, ok := b.posts[r.PathValue("id")]
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) create(w http.ResponseWriter, r *http.Request) {
	var in blog.PostInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := in.Validate(); err != nil {
		writeValidation(w, err)
		return
	}

	p := in.WithID(uuid.NewString())
	b.mu.Lock()
	b.posts[p.ID] = p
	b.order = append(b.order, p.ID)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (b *Backend) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var p blog.Post
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Input().Validate(); err != nil {
		writeValidation(w, err)
		return
	}
	p.ID = id

	b.mu.Lock()
	_, ok := b.posts[id]
	if ok {
		b.posts[id] = p
	}
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	_, ok := b.posts[id]
	if ok {
		delete(b.posts, id)
		for i, existing := range b.order {
			if existing == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeValidation(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]map[string]string{
		"error": blog.FieldErrors(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
