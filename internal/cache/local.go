package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localTier is the bounded, least-recently-used, TTL-aware local cache
// tier. Thread-safe via the LRU's own mutex plus a read lock for the
// expiry check, since the LRU package does not expose entry age.
type localTier struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Entry]
}

func newLocalTier(maxEntries int) *localTier {
	if maxEntries < 1 {
		maxEntries = 1000
	}
	c, _ := lru.New[string, Entry](maxEntries)
	return &localTier{cache: c}
}

func (t *localTier) get(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache.Get(key)
	if !ok {
		return Entry{}, false
	}
	if entry.expired(time.Now()) {
		t.cache.Remove(key)
		return Entry{}, false
	}
	return entry, true
}

func (t *localTier) set(key string, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(key, entry)
}

// sweep evicts every expired entry. Called periodically by CacheSweepJob
// rather than on every get, since the LRU package has no native TTL sweep.
func (t *localTier) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for _, key := range t.cache.Keys() {
		entry, ok := t.cache.Peek(key)
		if ok && entry.expired(now) {
			t.cache.Remove(key)
			removed++
		}
	}
	return removed
}

func (t *localTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

func (t *localTier) purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Purge()
}
