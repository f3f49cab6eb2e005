package blog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-blog-cache/blog"
	"github.com/goliatone/go-blog-cache/cache"
	"github.com/goliatone/go-blog-cache/pkg/testsupport"
	"github.com/goliatone/go-blog-cache/querycache"
	"github.com/goliatone/go-blog-cache/transport"
	"github.com/google/go-cmp/cmp"
)

type fixture struct {
	svc     *blog.Service
	backend *testsupport.Backend
	cache   *querycache.Client
	api     *transport.Client
}

func newFixture(t *testing.T, seed ...blog.Post) *fixture {
	t.Helper()

	backend := testsupport.NewBackend(seed...)
	t.Cleanup(backend.Close)

	cfg := cache.DefaultConfig()
	payloads, err := cache.NewPayloadStore(cfg)
	if err != nil {
		t.Fatalf("NewPayloadStore() error = %v", err)
	}
	qc, err := querycache.New(payloads, cfg)
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.BaseURL = backend.URL()
	tcfg.Token = "test-token"
	api, err := transport.New(tcfg)
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}

	return &fixture{svc: blog.NewService(qc, api), backend: backend, cache: qc, api: api}
}

func (f *fixture) listKey() string {
	return f.cache.Key(blog.EndpointList, nil)
}

func (f *fixture) postKey(id string) string {
	return f.cache.Key(blog.EndpointGet, id)
}

func waitUpdate[T any](t *testing.T, sub *querycache.Subscription[T]) T {
	t.Helper()
	select {
	case ev := <-sub.Updates():
		if ev.Err != nil {
			t.Fatalf("unexpected fetch error %v", ev.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	v, ok, err := sub.Current()
	if !ok || err != nil {
		t.Fatalf("Current() = %v, %v", ok, err)
	}
	return v
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

func validInput(title string) blog.PostInput {
	return blog.PostInput{
		Title:         title,
		Description:   "body",
		FeaturedImage: "https://images.example.com/x.png",
		PublishDate:   "2024-06-01T10:00",
	}
}

func ids(posts []blog.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestService_FetchListTagsEveryPostAndTheList(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)

	posts, err := f.svc.FetchList(context.Background())
	if err != nil {
		t.Fatalf("FetchList() error = %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, ids(posts)); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	want := []cache.Tag{blog.PostTag("1"), blog.PostTag("2"), blog.PostTag("3"), blog.ListTag()}
	if diff := cmp.Diff(want, f.cache.Index().Tags(f.listKey())); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestService_EmptyListStillRefreshesAfterCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := f.svc.WatchList(ctx)
	defer sub.Close()
	if got := waitUpdate(t, sub); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
	if diff := cmp.Diff([]cache.Tag{blog.ListTag()}, f.cache.Index().Tags(f.listKey())); diff != "" {
		t.Fatalf("empty list must carry the list tag (-want +got):\n%s", diff)
	}

	created, err := f.svc.Create(ctx, validInput("first"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, ok, err := sub.Current()
	if !ok || err != nil {
		t.Fatalf("Current() = %v, %v", ok, err)
	}
	if diff := cmp.Diff([]string{created.ID}, ids(got)); diff != "" {
		t.Errorf("list not refreshed when Create returned (-want +got):\n%s", diff)
	}
}

func TestService_CreateMarksUnsubscribedListStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.FetchList(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, validInput("first")); err != nil {
		t.Fatal(err)
	}

	entry, ok := f.cache.Store().Get(f.listKey())
	if !ok || !entry.Stale {
		t.Fatalf("expected stale list, got ok=%v stale=%v", ok, entry.Stale)
	}
	if calls := f.backend.Calls(testsupport.RouteList); calls != 1 {
		t.Errorf("unsubscribed list must not be refetched eagerly, got %d calls", calls)
	}

	posts, err := f.svc.FetchList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Errorf("expected next read to see the new post, got %d posts", len(posts))
	}
}

func TestService_FailedUpdateLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	if _, err := f.svc.FetchList(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.FetchOne(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	listBefore, _ := f.cache.Store().Get(f.listKey())
	postBefore, _ := f.cache.Store().Get(f.postKey("1"))

	bad := testsupport.SeedPosts()[0]
	bad.Title = ""
	_, err := f.svc.Update(ctx, bad)
	if !transport.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := transport.ValidationFields(err)["title"]; msg == "" {
		t.Errorf("expected title message, got %v", transport.ValidationFields(err))
	}

	listAfter, _ := f.cache.Store().Get(f.listKey())
	postAfter, _ := f.cache.Store().Get(f.postKey("1"))
	if diff := cmp.Diff(listBefore.Data, listAfter.Data); diff != "" {
		t.Errorf("list payload changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(postBefore.Data, postAfter.Data); diff != "" {
		t.Errorf("post payload changed (-before +after):\n%s", diff)
	}
	if listAfter.Stale || postAfter.Stale {
		t.Error("failed update must not invalidate")
	}
	if calls := f.backend.Calls(testsupport.RouteList); calls != 1 {
		t.Errorf("failed update must not refetch, got %d list calls", calls)
	}
}

func TestService_UpdateRefreshesListAndDetail(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	sub := f.svc.WatchList(ctx)
	defer sub.Close()
	waitUpdate(t, sub)
	if _, err := f.svc.FetchOne(ctx, "1"); err != nil {
		t.Fatal(err)
	}

	p := testsupport.SeedPosts()[0]
	p.Title = "Renamed"
	if _, err := f.svc.Update(ctx, p); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	list, _, _ := sub.Current()
	if list[0].Title != "Renamed" {
		t.Errorf("subscribed list not refreshed, got %q", list[0].Title)
	}
	if entry, _ := f.cache.Store().Get(f.postKey("1")); !entry.Stale {
		t.Error("unsubscribed detail must be stale")
	}
	one, err := f.svc.FetchOne(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if one.Title != "Renamed" {
		t.Errorf("expected refetched detail, got %q", one.Title)
	}
}

func TestService_UpdateDoesNotTouchOtherPosts(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	if _, err := f.svc.FetchOne(ctx, "2"); err != nil {
		t.Fatal(err)
	}

	p := testsupport.SeedPosts()[0]
	p.Title = "Renamed"
	if _, err := f.svc.Update(ctx, p); err != nil {
		t.Fatal(err)
	}

	if entry, _ := f.cache.Store().Get(f.postKey("2")); entry.Stale {
		t.Error("post 2 must stay fresh")
	}
}

func TestService_DeleteRefreshesSubscribedList(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	sub := f.svc.WatchList(ctx)
	defer sub.Close()
	waitUpdate(t, sub)

	if err := f.svc.Delete(ctx, "2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	list, _, _ := sub.Current()
	if diff := cmp.Diff([]string{"1", "3"}, ids(list)); diff != "" {
		t.Errorf("list mismatch after delete (-want +got):\n%s", diff)
	}
}

func TestService_FailedDeleteStillRefetches(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	sub := f.svc.WatchList(ctx)
	defer sub.Close()
	waitUpdate(t, sub)

	f.backend.FailNext(testsupport.RouteDelete, http.StatusInternalServerError, "boom")
	err := f.svc.Delete(ctx, "1")
	if transport.KindOf(err) != transport.KindUnexpected {
		t.Fatalf("expected unexpected-kind error, got %v", err)
	}

	if calls := f.backend.Calls(testsupport.RouteList); calls != 2 {
		t.Errorf("expected the list to be refetched after a failed delete, got %d calls", calls)
	}
	list, _, _ := sub.Current()
	if len(list) != 3 {
		t.Errorf("expected all posts to remain, got %d", len(list))
	}
}

func TestService_DeleteTransportFailureStillInvalidates(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	if _, err := f.svc.FetchOne(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	f.backend.Close()

	err := f.svc.Delete(ctx, "1")
	if transport.KindOf(err) != transport.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if entry, _ := f.cache.Store().Get(f.postKey("1")); !entry.Stale {
		t.Error("expected post to be stale after a failed delete")
	}
}

func TestService_ConcurrentListFetchesShareOneRequest(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	release := f.backend.Hold(testsupport.RouteList)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			posts, err := f.svc.FetchList(context.Background())
			if err == nil && len(posts) != 3 {
				err = errors.New("unexpected post count")
			}
			errs <- err
		}()
	}

	waitFor(t, "callers to join", func() bool {
		entry, ok := f.cache.Store().Stat(f.listKey())
		return ok && entry.Refs == callers
	})
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if calls := f.backend.Calls(testsupport.RouteList); calls != 1 {
		t.Errorf("expected a single list request, got %d", calls)
	}
}

func TestService_RefetchList(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	if _, err := f.svc.FetchList(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RefetchList(ctx); err != nil {
		t.Fatal(err)
	}
	if calls := f.backend.Calls(testsupport.RouteList); calls != 2 {
		t.Errorf("expected RefetchList to hit the backend, got %d calls", calls)
	}
}

func TestService_WatchPost(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)

	sub := f.svc.WatchPost(context.Background(), "3")
	defer sub.Close()

	if got := waitUpdate(t, sub); got.Title != "Drafts" {
		t.Errorf("unexpected post %+v", got)
	}
	if sub.Key() != f.postKey("3") {
		t.Errorf("unexpected key %q", sub.Key())
	}
}

func TestService_SendsBearerToken(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)

	if _, err := f.svc.FetchList(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Bearer test-token"}, f.backend.AuthHeaders()); diff != "" {
		t.Errorf("auth headers mismatch (-want +got):\n%s", diff)
	}
}

func TestService_FetchOneNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.FetchOne(context.Background(), "missing")
	var te *transport.Error
	if !errors.As(err, &te) || te.Status != http.StatusNotFound {
		t.Fatalf("expected 404 transport error, got %v", err)
	}
}

func TestService_WritesWithoutIDAreRejectedLocally(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	ctx := context.Background()

	if _, err := f.svc.FetchList(ctx); err != nil {
		t.Fatal(err)
	}

	noID := testsupport.SeedPosts()[0]
	noID.ID = ""
	if _, err := f.svc.Update(ctx, noID); !errors.Is(err, blog.ErrMissingID) {
		t.Errorf("Update() error = %v, want ErrMissingID", err)
	}
	if err := f.svc.Delete(ctx, ""); !errors.Is(err, blog.ErrMissingID) {
		t.Errorf("Delete() error = %v, want ErrMissingID", err)
	}

	if n := f.backend.WriteCalls(); n != 0 {
		t.Errorf("expected no requests, got %d writes", n)
	}
	if e, _ := f.cache.Store().Get(f.listKey()); e.Stale {
		t.Error("rejected writes must not invalidate the list")
	}
}

func TestService_LogsRejectedInputAtInfo(t *testing.T) {
	f := newFixture(t, testsupport.SeedPosts()...)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := blog.NewService(f.cache, f.api, blog.WithLogger(logger))
	ctx := context.Background()

	if _, err := svc.Create(ctx, blog.PostInput{}); !transport.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if out := buf.String(); !strings.Contains(out, `level=INFO msg="create post failed"`) {
		t.Errorf("expected info level for rejected input, got:\n%s", out)
	}

	buf.Reset()
	f.backend.FailNext(testsupport.RouteDelete, http.StatusInternalServerError, "boom")
	if err := svc.Delete(ctx, "1"); err == nil {
		t.Fatal("expected delete failure")
	}
	if out := buf.String(); !strings.Contains(out, `level=WARN msg="delete post failed"`) {
		t.Errorf("expected warn level for backend failure, got:\n%s", out)
	}
}
