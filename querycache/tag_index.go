package querycache

import (
	"sort"
	"sync"

	"github.com/goliatone/go-blog-cache/cache"
)

// TagIndex maps tags to the cache keys whose current results depend on them.
type TagIndex struct {
	mu    sync.RWMutex
	byTag map[cache.Tag]map[string]struct{}
	byKey map[string][]cache.Tag
}

// NewTagIndex returns an empty index.
func NewTagIndex() *TagIndex {
	return &TagIndex{
		byTag: make(map[cache.Tag]map[string]struct{}),
		byKey: make(map[string][]cache.Tag),
	}
}

// Index registers that key depends on tags, replacing whatever the key was
// registered under before. A list refetch that no longer contains post 3 must
// stop answering to ("Posts", "3").
func (ix *TagIndex) Index(tags []cache.Tag, key string) {
	tags = cache.DedupeTags(tags)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(key)
	if len(tags) == 0 {
		return
	}

	ix.byKey[key] = tags
	for _, tag := range tags {
		keys, ok := ix.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			ix.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate returns the sorted keys registered under any of tags. It only
// reads the index: calling it twice yields the same keys.
func (ix *TagIndex) Invalidate(tags []cache.Tag) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tag := range tags {
		for key := range ix.byTag[tag] {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Remove drops every registration of key.
func (ix *TagIndex) Remove(key string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(key)
}

// Tags returns the tags key is registered under.
func (ix *TagIndex) Tags(key string) []cache.Tag {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]cache.Tag(nil), ix.byKey[key]...)
}

// Len returns the number of indexed keys.
func (ix *TagIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byKey)
}

func (ix *TagIndex) removeLocked(key string) {
	for _, tag := range ix.byKey[key] {
		keys := ix.byTag[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(ix.byTag, tag)
		}
	}
	delete(ix.byKey, key)
}
