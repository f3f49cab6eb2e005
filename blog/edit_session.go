package blog

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-blog-cache/transport"
)

// EditState is the state of an EditSession.
type EditState int

const (
	// Idle means no post is being edited; the form creates new posts.
	Idle EditState = iota
	// Editing means the form is bound to an existing post.
	Editing
)

func (s EditState) String() string {
	if s == Editing {
		return "editing"
	}
	return "idle"
}

var (
	// ErrNotEditing is returned by CommitEdit when no post is being edited.
	ErrNotEditing = errors.New("blog: no post is being edited")

	// ErrEditSuperseded is returned by StartEdit when another StartEdit or a
	// CancelEdit happened while the post was loading.
	ErrEditSuperseded = errors.New("blog: edit superseded")
)

// EditSession is the form state of the posts UI: Idle, or Editing one post.
// Entering or leaving Editing never writes to the backend.
type EditSession struct {
	svc *Service

	mu          sync.Mutex
	state       EditState
	editingID   string
	draft       Post
	generation  uint64
	fieldErrors map[string]string
}

// NewEditSession returns an Idle session writing through s.
func (s *Service) NewEditSession() *EditSession {
	return &EditSession{svc: s}
}

// State returns the current state and, when Editing, the post id.
func (es *EditSession) State() (EditState, string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.state, es.editingID
}

// Draft returns the post the form was hydrated with.
func (es *EditSession) Draft() Post {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.draft
}

// FieldErrors returns the per-field messages of the last rejected submit.
func (es *EditSession) FieldErrors() map[string]string {
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.fieldErrors) == 0 {
		return nil
	}
	out := make(map[string]string, len(es.fieldErrors))
	for k, v := range es.fieldErrors {
		out[k] = v
	}
	return out
}

// StartEdit switches to Editing(id) and hydrates the draft with the cached
// or freshly fetched post. If loading fails the session returns to Idle.
func (es *EditSession) StartEdit(ctx context.Context, id string) (Post, error) {
	es.mu.Lock()
	es.generation++
	gen := es.generation
	es.state = Editing
	es.editingID = id
	es.draft = Post{}
	es.fieldErrors = nil
	es.mu.Unlock()

	post, err := es.svc.FetchOne(ctx, id)

	es.mu.Lock()
	defer es.mu.Unlock()

	if gen != es.generation {
		return Post{}, ErrEditSuperseded
	}
	if err != nil {
		es.resetLocked()
		return Post{}, err
	}
	es.draft = post
	return post, nil
}

// CancelEdit discards the draft and returns to Idle. It performs no I/O.
func (es *EditSession) CancelEdit() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.generation++
	es.resetLocked()
}

// CommitEdit saves post as the edited post and returns to Idle on success.
// The id of the post being edited wins over post.ID. A validation failure
// keeps the session in Editing with FieldErrors set.
func (es *EditSession) CommitEdit(ctx context.Context, post Post) (Post, error) {
	es.mu.Lock()
	if es.state != Editing {
		es.mu.Unlock()
		return Post{}, ErrNotEditing
	}
	post.ID = es.editingID
	gen := es.generation
	es.mu.Unlock()

	updated, err := es.svc.Update(ctx, post)
	es.settle(gen, err)
	return updated, err
}

// Submit is the form's single save action: it updates the edited post when
// Editing and creates a new post when Idle.
func (es *EditSession) Submit(ctx context.Context, post Post) (Post, error) {
	es.mu.Lock()
	editing := es.state == Editing
	gen := es.generation
	es.mu.Unlock()

	if editing {
		return es.CommitEdit(ctx, post)
	}

	created, err := es.svc.Create(ctx, post.Input())
	es.settle(gen, err)
	return created, err
}

// settle records the outcome of a write started at generation gen.
func (es *EditSession) settle(gen uint64, err error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if gen != es.generation {
		return
	}
	if err != nil {
		es.fieldErrors = transport.ValidationFields(err)
		return
	}
	es.generation++
	es.resetLocked()
}

func (es *EditSession) resetLocked() {
	es.state = Idle
	es.editingID = ""
	es.draft = Post{}
	es.fieldErrors = nil
}
