package dht

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

// MaxCacheTime is MAX_CACHE_TIME: response-cache and pending-store entries
// older than this are pruned by MindCaches.
const MaxCacheTime = 30 * time.Second

type cacheEntry struct {
	msg     Message
	arrival time.Time
}

// ResponseCache holds inbound responses keyed by conversationId. A caller
// blocked in doRPC receives its response over a per-conversation channel
// instead; deliverResponse puts a response here only when no waiter is
// left for it. Writes are guarded by a mutex; gcache supplies the bounded
// backing map so a runaway number of unclaimed responses cannot grow the
// cache without limit.
type ResponseCache struct {
	mu    sync.Mutex
	cache gcache.Cache
}

// NewResponseCache builds a response cache holding at most capacity
// in-flight conversations.
func NewResponseCache(capacity int) *ResponseCache {
	return &ResponseCache{cache: gcache.New(capacity).LRU().Build()}
}

// Put records msg as the response for its ConversationID.
func (rc *ResponseCache) Put(msg Message, now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_ = rc.cache.Set(msg.ConversationID, cacheEntry{msg: msg, arrival: now})
}

// GetCachedResponse returns the entry for conversationID iff its Kind
// matches want, removing it atomically. This is the Go rendering of the
// source's generic GetCachedResponse<T>: the discriminant check replaces a
// type check.
func (rc *ResponseCache) GetCachedResponse(conversationID string, want Kind) (Message, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, err := rc.cache.Get(conversationID)
	if err != nil {
		return Message{}, false
	}
	entry := v.(cacheEntry)
	if entry.msg.Kind != want {
		return Message{}, false
	}
	rc.cache.Remove(conversationID)
	return entry.msg, true
}

// Sweep removes every entry older than MaxCacheTime, run by MindCaches.
func (rc *ResponseCache) Sweep(now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, k := range rc.cache.Keys(false) {
		v, err := rc.cache.GetIFPresent(k)
		if err != nil {
			continue
		}
		if now.Sub(v.(cacheEntry).arrival) > MaxCacheTime {
			rc.cache.Remove(k)
		}
	}
}
