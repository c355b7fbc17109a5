package dht

import (
	"testing"
	"time"

	"github.com/sheepfriend/p2p-player/internal/repository"
)

func TestPendingStoreCachesSentRoundTrip(t *testing.T) {
	p := NewPendingStoreCaches(16)
	offer := sentStoreOffer{
		tag:     repository.CompleteTag{Title: "X", TagHash: "h"},
		target:  Contact{ID: RandomID(), Endpoint: "sim://x"},
		arrival: time.Now(),
	}
	p.PutSent("cid", offer)

	got, ok := p.TakeSent("cid")
	if !ok {
		t.Fatalf("expected a hit on TakeSent")
	}
	if got.tag.TagHash != "h" {
		t.Fatalf("unexpected offer tag %+v", got.tag)
	}
	if _, ok := p.TakeSent("cid"); ok {
		t.Fatalf("expected the entry to be consumed by the first TakeSent")
	}
}

func TestPendingStoreCachesAcceptedRoundTrip(t *testing.T) {
	p := NewPendingStoreCaches(16)
	p.PutAccepted("cid", time.Now())

	if !p.TakeAccepted("cid") {
		t.Fatalf("expected a hit on TakeAccepted")
	}
	if p.TakeAccepted("cid") {
		t.Fatalf("expected the entry to be consumed by the first TakeAccepted")
	}
}

func TestPendingStoreCachesSweepEvictsStale(t *testing.T) {
	p := NewPendingStoreCaches(16)
	old := time.Now().Add(-MaxCacheTime - time.Second)
	p.PutSent("stale", sentStoreOffer{arrival: old})
	p.PutAccepted("stale-accepted", old)

	p.Sweep(time.Now())

	if _, ok := p.TakeSent("stale"); ok {
		t.Fatalf("expected stale sent offer to be swept")
	}
	if p.TakeAccepted("stale-accepted") {
		t.Fatalf("expected stale accepted offer to be swept")
	}
}
