package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/sheepfriend/p2p-player/internal/netx"
	"github.com/sheepfriend/p2p-player/internal/proto"
)

func newTestNode(t *testing.T, selfID string) *Node {
	t.Helper()
	n := NewNode(Config{
		SelfID:   selfID,
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
	}, nil)
	if err := n.Start(); err != nil {
		t.Fatalf("Start(%s): %v", selfID, err)
	}
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func TestConnectToEstablishesHandshake(t *testing.T) {
	a := newTestNode(t, "node-a")
	b := newTestNode(t, "node-b")

	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(a.KnownPeers()) > 0 && len(b.KnownPeers()) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected both sides to know each other after the hello handshake; a=%v b=%v", a.KnownPeers(), b.KnownPeers())
}

func TestSendToPeerDeliversEnvelope(t *testing.T) {
	var mu sync.Mutex
	var received []proto.Envelope

	a := newTestNode(t, "node-a")
	b := newTestNode(t, "node-b")
	b.SetHandler(func(fromID, fromAddr string, env proto.Envelope) {
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
	})

	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(a.KnownPeers()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(a.KnownPeers()) == 0 {
		t.Fatalf("handshake never completed")
	}

	env := proto.Envelope{Type: proto.MsgDHT, FromID: "node-a", Payload: proto.MustMarshal(map[string]string{"kind": "PING"})}
	if err := a.SendToPeer("node-b", env); err != nil {
		t.Fatalf("SendToPeer: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected b to receive the envelope sent by a")
}

func TestSendToPeerUnknownReturnsError(t *testing.T) {
	a := newTestNode(t, "node-a")
	err := a.SendToPeer("nobody", proto.Envelope{})
	if err == nil {
		t.Fatalf("expected an error sending to an unknown peer")
	}
}
