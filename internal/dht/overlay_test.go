package dht

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sheepfriend/p2p-player/internal/dht/simnet"
	"github.com/sheepfriend/p2p-player/internal/proto"
	"github.com/sheepfriend/p2p-player/internal/repository"
)

type testPeer struct {
	node *Node
	peer *simnet.Peer
	repo *repository.Store
}

func newTestPeer(t *testing.T, nw *simnet.Network, endpoint string) *testPeer {
	t.Helper()
	return newTestPeerWithID(t, nw, endpoint, RandomID())
}

func newTestPeerWithID(t *testing.T, nw *simnet.Network, endpoint string, id ID) *testPeer {
	t.Helper()
	repo, err := repository.Open(filepath.Join(t.TempDir(), "repo.bolt"))
	if err != nil {
		t.Fatalf("repository.Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	p := simnet.NewPeer(nw, id.Hex(), endpoint)
	n := NewNode(Config{
		Self:       Contact{ID: id, Endpoint: endpoint},
		Sender:     p,
		Repository: repo,
		Metrics:    NewMetricsWithRegisterer(nil),
	})
	p.SetHandler(n)
	n.Start()
	t.Cleanup(n.Stop)
	return &testPeer{node: n, peer: p, repo: repo}
}

func TestBootstrapAdmitsEachOther(t *testing.T) {
	nw := simnet.NewNetwork(1)
	a := newTestPeer(t, nw, "sim://a")
	b := newTestPeer(t, nw, "sim://b")

	// B bootstraps against A by seeding A's contact directly, matching S1:
	// starting alone, then bootstrapping a second node against the first.
	b.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})

	if !b.node.pingAlive(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint}) {
		t.Fatalf("expected B to successfully PING A")
	}
	time.Sleep(20 * time.Millisecond) // let SawContact's admission queue drain

	if !a.node.rt.Contains(b.node.self.ID) {
		t.Fatalf("expected A's routing table to contain B after B pinged it")
	}
}

func TestPutGetSingleHop(t *testing.T) {
	nw := simnet.NewNetwork(2)
	a := newTestPeer(t, nw, "sim://a")
	b := newTestPeer(t, nw, "sim://b")

	a.node.rt.Put(Contact{ID: b.node.self.ID, Endpoint: b.node.self.Endpoint})
	b.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})

	a.node.Put(repository.CompleteTag{Title: "Imagine", Artist: "John Lennon", Album: "Imagine"})

	results := b.node.Get("imagine")
	if len(results) == 0 {
		t.Fatalf("expected B.Get to find a resource published by A")
	}
	found := false
	for _, r := range results {
		if r.Tag.Title == "Imagine" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a result titled Imagine, got %+v", results)
	}
}

func TestStoreIdempotenceSameEndpoint(t *testing.T) {
	nw := simnet.NewNetwork(3)
	a := newTestPeer(t, nw, "sim://a")
	b := newTestPeer(t, nw, "sim://b")

	a.node.rt.Put(Contact{ID: b.node.self.ID, Endpoint: b.node.self.Endpoint})
	b.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})

	tag := repository.CompleteTag{Title: "Imagine", Artist: "John Lennon", Album: "Imagine", TagHash: "fixed-hash"}
	now := time.Now()

	a.node.IterativeStore(tag, now, a.node.self.Endpoint)
	time.Sleep(20 * time.Millisecond)
	a.node.IterativeStore(tag, now.Add(time.Minute), a.node.self.Endpoint)
	time.Sleep(20 * time.Millisecond)

	rec, ok, err := b.repo.Get(tag.TagHash)
	if err != nil || !ok {
		t.Fatalf("expected B to hold the resource: ok=%v err=%v", ok, err)
	}
	if len(rec.URLs) != 1 {
		t.Fatalf("expected exactly one url entry after repeated IterativeStore, got %d", len(rec.URLs))
	}
	if !rec.URLs[0].PublicationTime.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected publication time to be refreshed to the latest store")
	}
}

func TestClockSkewRejection(t *testing.T) {
	nw := simnet.NewNetwork(4)
	a := newTestPeer(t, nw, "sim://a")
	b := newTestPeer(t, nw, "sim://b")

	a.node.rt.Put(Contact{ID: b.node.self.ID, Endpoint: b.node.self.Endpoint})
	b.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})

	tag := repository.CompleteTag{Title: "Skewed", Artist: "X", Album: "Y", TagHash: "skew-hash"}
	future := time.Now().Add(2 * time.Hour)

	a.node.IterativeStore(tag, future, a.node.self.Endpoint)
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := b.repo.Get(tag.TagHash); ok {
		t.Fatalf("expected STORE_DATA with publicationTime beyond MaxClockSkew to be rejected")
	}
}

// blackholeHandler is a simnet peer that stays registered on the network
// but never answers, so an RPC to it pays the full MaxSyncWait timeout
// rather than failing fast the way an unregistered peer would.
type blackholeHandler struct{}

func (blackholeHandler) HandleEnvelope(fromID, fromAddr string, env proto.Envelope) {}

func TestIterativeFindNodeSurvivesDeadContact(t *testing.T) {
	nw := simnet.NewNetwork(5)
	a := newTestPeer(t, nw, "sim://a")
	alive := newTestPeer(t, nw, "sim://alive")

	deadID := RandomID()
	deadPeer := simnet.NewPeer(nw, deadID.Hex(), "sim://dead")
	deadPeer.SetHandler(blackholeHandler{})

	a.node.rt.Put(Contact{ID: alive.node.self.ID, Endpoint: alive.node.self.Endpoint})
	a.node.rt.Put(Contact{ID: deadID, Endpoint: "sim://dead"})
	alive.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})

	start := time.Now()
	got := a.node.IterativeFindNode(RandomID())
	elapsed := time.Since(start)

	if elapsed < MaxSyncWait {
		t.Fatalf("expected the lookup to pay the MaxSyncWait timeout for the dead contact, took %v", elapsed)
	}

	foundAlive := false
	for _, c := range got {
		if c.ID == alive.node.self.ID {
			foundAlive = true
		}
		if c.ID == deadID {
			t.Fatalf("dead contact should have been dropped from the shortlist")
		}
	}
	if !foundAlive {
		t.Fatalf("expected alive contact's contribution to survive, got %+v", got)
	}
}

func TestIterativeFindNodeResultsDistinctAndBoundedByK(t *testing.T) {
	nw := simnet.NewNetwork(6)
	a := newTestPeer(t, nw, "sim://a")

	for i := 0; i < K+10; i++ {
		p := newTestPeer(t, nw, fmt.Sprintf("sim://n%d", i))
		a.node.rt.Put(Contact{ID: p.node.self.ID, Endpoint: p.node.self.Endpoint})
		p.node.rt.Put(Contact{ID: a.node.self.ID, Endpoint: a.node.self.Endpoint})
	}

	target := RandomID()
	got := a.node.IterativeFindNode(target)
	if len(got) > K {
		t.Fatalf("expected at most %d contacts, got %d", K, len(got))
	}
	seen := make(map[ID]bool)
	for _, c := range got {
		if seen[c.ID] {
			t.Fatalf("duplicate contact %s in IterativeFindNode result", c.ID)
		}
		seen[c.ID] = true
	}
}
