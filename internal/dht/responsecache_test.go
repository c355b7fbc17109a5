package dht

import (
	"testing"
	"time"
)

func TestResponseCachePutAndGetMatchingKind(t *testing.T) {
	rc := NewResponseCache(16)
	msg := Message{Kind: KindPong, ConversationID: "cid-1"}
	rc.Put(msg, time.Now())

	got, ok := rc.GetCachedResponse("cid-1", KindPong)
	if !ok {
		t.Fatalf("expected a cached PONG response")
	}
	if got.ConversationID != "cid-1" {
		t.Fatalf("unexpected conversation id %q", got.ConversationID)
	}
}

func TestResponseCacheGetWrongKindMisses(t *testing.T) {
	rc := NewResponseCache(16)
	rc.Put(Message{Kind: KindPong, ConversationID: "cid-1"}, time.Now())

	if _, ok := rc.GetCachedResponse("cid-1", KindFindNodeResponse); ok {
		t.Fatalf("expected discriminant mismatch to miss")
	}
}

func TestResponseCacheGetRemovesEntry(t *testing.T) {
	rc := NewResponseCache(16)
	rc.Put(Message{Kind: KindPong, ConversationID: "cid-1"}, time.Now())

	if _, ok := rc.GetCachedResponse("cid-1", KindPong); !ok {
		t.Fatalf("expected a hit on first read")
	}
	if _, ok := rc.GetCachedResponse("cid-1", KindPong); ok {
		t.Fatalf("expected the entry to be gone after being read once")
	}
}

func TestResponseCacheSweepEvictsStaleEntries(t *testing.T) {
	rc := NewResponseCache(16)
	old := time.Now().Add(-MaxCacheTime - time.Second)
	rc.Put(Message{Kind: KindPong, ConversationID: "stale"}, old)
	rc.Put(Message{Kind: KindPong, ConversationID: "fresh"}, time.Now())

	rc.Sweep(time.Now())

	if _, ok := rc.GetCachedResponse("stale", KindPong); ok {
		t.Fatalf("expected stale entry to be swept")
	}
	if _, ok := rc.GetCachedResponse("fresh", KindPong); !ok {
		t.Fatalf("expected fresh entry to survive the sweep")
	}
}
