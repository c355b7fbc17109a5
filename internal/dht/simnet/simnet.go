// Package simnet is an in-process, deterministic stand-in for the real
// transport: it lets overlay tests (bootstrap, iterative lookup, STORE
// round trips) exercise several dht.Node values without opening sockets.
// It is not production networking — adapted from the teacher's
// internal/dht/sim package, which serves the same role.
package simnet

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sheepfriend/p2p-player/internal/proto"
)

// Handler is the subset of dht.Node's inbound surface simnet needs: decode
// and dispatch an envelope arriving from a peer.
type Handler interface {
	HandleEnvelope(fromID string, fromAddr string, env proto.Envelope)
}

// Network routes envelopes between registered Peers by node id, optionally
// injecting latency and drops. A dropped envelope is reported to the sender
// as sent, so the waiting RPC still pays its full MaxSyncWait timeout.
type Network struct {
	mu    sync.RWMutex
	peers map[string]*Peer

	Latency  time.Duration
	DropRate float64
	rng      *rand.Rand
}

// NewNetwork builds a deterministic network seeded for reproducible drops.
func NewNetwork(seed int64) *Network {
	return &Network{
		peers: make(map[string]*Peer),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (nw *Network) add(p *Peer) {
	nw.mu.Lock()
	nw.peers[p.id] = p
	nw.mu.Unlock()
}

// Remove takes a peer off the network; sends addressed to it afterward
// fail immediately with an error, as if the node had crashed, rather than
// timing out.
func (nw *Network) Remove(id string) {
	nw.mu.Lock()
	delete(nw.peers, id)
	nw.mu.Unlock()
}

func (nw *Network) deliver(from *Peer, toID string, env proto.Envelope) error {
	nw.mu.RLock()
	to := nw.peers[toID]
	nw.mu.RUnlock()
	if to == nil {
		return fmt.Errorf("simnet: unknown peer %s", toID)
	}
	if nw.DropRate > 0 && nw.rng.Float64() < nw.DropRate {
		return nil
	}
	if nw.Latency > 0 {
		time.Sleep(nw.Latency)
	}
	go to.handler.HandleEnvelope(from.id, from.addr, env)
	return nil
}

// Peer implements dht.Sender against a Network, standing in for a
// transport.Node in tests.
type Peer struct {
	nw      *Network
	id      string
	addr    string
	handler Handler
}

// NewPeer registers a new simulated peer on nw. handler is normally the
// dht.Node constructed with this Peer as its Sender; it is wired in after
// construction since the two are mutually referential.
func NewPeer(nw *Network, id, addr string) *Peer {
	p := &Peer{nw: nw, id: id, addr: addr}
	nw.add(p)
	return p
}

// SetHandler installs the inbound dispatcher, closing the construction loop
// between a dht.Node and the Peer it sends through.
func (p *Peer) SetHandler(h Handler) { p.handler = h }

func (p *Peer) ID() string { return p.id }

func (p *Peer) SendToPeer(id string, env proto.Envelope) error {
	return p.nw.deliver(p, id, env)
}

func (p *Peer) Logf(format string, args ...any) {}
