// Package transport carries proto.Envelope frames between peers over TCP
// (via internal/netx), without any of the encryption or identity machinery
// a deployed overlay would add on top — this repository's Non-goals
// exclude cryptographic peer authentication. A Node satisfies the dht
// package's Sender interface directly.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sheepfriend/p2p-player/internal/netx"
	"github.com/sheepfriend/p2p-player/internal/proto"
	"github.com/sheepfriend/p2p-player/internal/telemetry"
)

// Config configures a Node.
type Config struct {
	SelfID   string       // hex node id, used as the Hello identifier
	Network  netx.Network // transport implementation, e.g. netx.NewTCPNetwork()
	BindAddr string       // e.g. ":0"
	Logger   telemetry.Logger
}

type peer struct {
	id     string
	addr   netx.Addr
	conn   netx.Conn
	writer *json.Encoder
	sendCh chan proto.Envelope

	ctx    context.Context
	cancel context.CancelFunc
}

// Handler processes an inbound envelope from a known peer. The dht package
// supplies one that decodes the DHT message set.
type Handler func(fromID string, fromAddr string, env proto.Envelope)

// Node is a minimal peer-to-peer transport: it dials and accepts TCP
// connections, exchanges a Hello frame to learn each side's node id and
// listen address, then relays subsequent envelopes to a Handler.
type Node struct {
	cfg Config
	log telemetry.Logger

	addr netx.Addr

	mu    sync.RWMutex
	peers map[string]*peer

	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode constructs a Node; call Start to begin listening.
func NewNode(cfg Config, handler Handler) *Node {
	log := cfg.Logger
	if log == nil {
		log = telemetry.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:     cfg,
		log:     log,
		peers:   make(map[string]*peer),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns this node's self-asserted identifier, matching dht.Sender.
func (n *Node) ID() string { return n.cfg.SelfID }

// SetHandler installs the envelope handler. It must be called before
// Start; it exists separately from NewNode so callers can construct a
// Node, hand it to their protocol layer as a Sender, and only then close
// the loop by wiring that protocol layer's handler back in.
func (n *Node) SetHandler(h Handler) { n.handler = h }

// ListenAddr returns the address the node is bound to.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Start binds the listener and begins accepting inbound connections.
func (n *Node) Start() error {
	addr, err := n.cfg.Network.Listen(n.cfg.BindAddr)
	if err != nil {
		return err
	}
	n.addr = addr
	n.log.Infof("transport listening on %s, id=%s", n.addr, n.cfg.SelfID)
	go n.acceptLoop()
	return nil
}

// Stop tears down every peer connection and the listener.
func (n *Node) Stop() error {
	n.cancel()
	n.mu.Lock()
	for _, p := range n.peers {
		p.cancel()
		_ = p.conn.Close()
	}
	n.mu.Unlock()
	return n.cfg.Network.Close()
}

// SendToPeer queues env for delivery to the peer known by id.
func (n *Node) SendToPeer(id string, env proto.Envelope) error {
	n.mu.RLock()
	p, ok := n.peers[id]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", id)
	}
	n.sendAsync(p, env)
	return nil
}

// Logf satisfies dht.Sender; it routes through the structured logger at
// debug level.
func (n *Node) Logf(format string, args ...any) {
	n.log.Debugf(format, args...)
}

func (n *Node) sendAsync(p *peer, env proto.Envelope) {
	select {
	case p.sendCh <- env:
	default:
		n.log.Warnf("peer %s send buffer full, dropping envelope", p.id)
		go n.removePeer(p.id)
	}
}

func (n *Node) addPeer(p *peer) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.peers[p.id]; exists {
		return false
	}
	n.peers[p.id] = p
	return true
}

func (n *Node) removePeer(id string) {
	n.mu.Lock()
	p, ok := n.peers[id]
	if ok {
		delete(n.peers, id)
	}
	n.mu.Unlock()
	if ok {
		p.cancel()
		_ = p.conn.Close()
	}
}

// KnownPeers returns the ids of currently connected peers.
func (n *Node) KnownPeers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}
