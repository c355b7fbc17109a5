package dht

import (
	"fmt"
	"time"

	"github.com/sheepfriend/p2p-player/internal/proto"
)

var responseKinds = map[Kind]bool{
	KindPong:                 true,
	KindFindNodeResponse:     true,
	KindFindValueContactResp: true,
	KindFindValueDataResp:    true,
	KindStoreResponse:        true,
}

func newConversationID() string { return RandomID().Hex() }

func (n *Node) send(target Contact, msg Message) error {
	msg.SenderID = n.self.ID.Hex()
	msg.SenderEndpoint = n.self.Endpoint
	env := proto.Envelope{
		Type:    proto.MsgDHT,
		FromID:  n.self.ID.Hex(),
		Payload: msg.marshal(),
	}
	n.metrics.IncSent(msg.Kind)
	return n.sender.SendToPeer(target.ID.Hex(), env)
}

// doRPC implements the synchronous RPC pattern: register a single-shot
// channel for this conversation, send the request, then wait up to
// MaxSyncWait. A channel replaces the source's poll loop, per the
// re-architecture note that the contract ("at most one waiter per
// conversationId, resolved by response or timeout") leaves open. It
// returns ErrPeerUnreachable, wrapped with the target, on send failure or
// timeout.
func (n *Node) doRPC(target Contact, req Message, wantKind Kind) (Message, error) {
	return n.doRPCEither(target, req, wantKind)
}

// doRPCEither is doRPC generalised to accept any one of several response
// kinds, for requests (like FIND_VALUE) whose reply shape branches.
func (n *Node) doRPCEither(target Contact, req Message, wantKinds ...Kind) (Message, error) {
	if req.ConversationID == "" {
		req.ConversationID = newConversationID()
	}
	ch := make(chan Message, 1)
	n.pendingMu.Lock()
	n.pending[req.ConversationID] = ch
	n.pendingMu.Unlock()

	if err := n.send(target, req); err != nil {
		n.pendingMu.Lock()
		delete(n.pending, req.ConversationID)
		n.pendingMu.Unlock()
		n.metrics.IncPeerUnreachable()
		return Message{}, fmt.Errorf("dht: send to %s: %w", target.ID, ErrPeerUnreachable)
	}

	timer := time.NewTimer(MaxSyncWait)
	defer timer.Stop()

	select {
	case resp := <-ch:
		for _, k := range wantKinds {
			if resp.Kind == k {
				return resp, nil
			}
		}
		return Message{}, fmt.Errorf("dht: %s replied with unexpected kind %q", target.ID, resp.Kind)
	case <-timer.C:
		n.pendingMu.Lock()
		delete(n.pending, req.ConversationID)
		n.pendingMu.Unlock()
		n.metrics.IncPeerUnreachable()
		return Message{}, fmt.Errorf("dht: %s timed out after %s: %w", target.ID, MaxSyncWait, ErrPeerUnreachable)
	}
}

// HandleEnvelope is the transport entry point: every inbound MsgDHT
// envelope from a known peer arrives here.
func (n *Node) HandleEnvelope(fromID string, fromAddr string, env proto.Envelope) {
	if env.Type != proto.MsgDHT {
		return
	}
	msg, err := decodeMessage(env.Payload)
	if err != nil {
		n.log.Warnf("dht: bad payload from %s: %v", fromID, err)
		return
	}

	if !n.allowFrom(fromID) {
		return
	}

	n.metrics.IncReceived(msg.Kind)

	senderID, err := ParseIDHex(msg.SenderID)
	if err == nil {
		endpoint := msg.SenderEndpoint
		if endpoint == "" {
			endpoint = fromAddr
		}
		n.SawContact(Contact{ID: senderID, Endpoint: endpoint})
	}

	if responseKinds[msg.Kind] {
		n.deliverResponse(msg)
		if msg.Kind == KindStoreResponse {
			n.handleStoreResponseSideEffect(msg)
		}
		return
	}

	switch msg.Kind {
	case KindPing:
		n.handlePing(msg)
	case KindFindNode:
		n.handleFindNode(msg)
	case KindFindValue:
		n.handleFindValue(msg)
	case KindStoreQuery:
		n.handleStoreQuery(msg)
	case KindStoreData:
		n.handleStoreData(msg)
	default:
		n.log.Debugf("dht: unhandled message kind %q from %s", msg.Kind, fromID)
	}
}

// deliverResponse routes an inbound response to its live waiter, if one
// still exists; otherwise it lands in the ResponseCache, where it sits
// until MindCaches sweeps it.
func (n *Node) deliverResponse(msg Message) {
	n.pendingMu.Lock()
	ch, ok := n.pending[msg.ConversationID]
	if ok {
		delete(n.pending, msg.ConversationID)
	}
	n.pendingMu.Unlock()

	if ok {
		select {
		case ch <- msg:
		default:
		}
		return
	}
	n.cache.Put(msg, n.now())
}

func (n *Node) allowFrom(peerID string) bool {
	n.rl.Lock()
	defer n.rl.Unlock()
	b := n.rlimit[peerID]
	if b == nil {
		b = &tokenBucket{}
		n.rlimit[peerID] = b
	}
	return b.allow(n.now(), 40, 80, 1)
}
